package audit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// writeTimeout bounds each store write so one wedged insert cannot stall
// the drain goroutine forever.
const writeTimeout = 5 * time.Second

// RecorderConfig carries the tunables for the async recorder.
type RecorderConfig struct {
	// BufferSize is the channel capacity between request handlers and
	// the writer goroutine.
	BufferSize int

	// TelemetrySampleRate is the fraction of telemetry-ingest events
	// actually recorded (0..1). Everything else is recorded in full.
	TelemetrySampleRate float64
}

// Recorder accepts audit entries without blocking the caller and writes
// them in the background. Record never returns an error: audit loss is
// logged, never propagated into the request path.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
	cfg    RecorderConfig

	ch   chan Entry
	wg   sync.WaitGroup
	once sync.Once
}

// NewRecorder creates a recorder and starts its writer goroutine.
func NewRecorder(repo Repository, logger *slog.Logger, cfg RecorderConfig) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	r := &Recorder{
		repo:   repo,
		logger: logger,
		cfg:    cfg,
		ch:     make(chan Entry, cfg.BufferSize),
	}

	r.wg.Add(1)
	go r.drain()

	return r
}

// Record enqueues an audit entry. Telemetry-ingest events are sampled;
// everything else is always enqueued. If the buffer is full the entry is
// dropped with a warning — the request path must not wait on the disk.
func (r *Recorder) Record(entry Entry) {
	if entry.Action == ActionTelemetryIngest && rand.Float64() >= r.cfg.TelemetrySampleRate {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}

	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit buffer full, dropping event",
			"action", entry.Action,
			"user_id", entry.UserID,
		)
	}
}

// Close stops accepting entries, flushes everything already queued, and
// waits for the writer to finish. Safe to call more than once.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.ch)
	})
	r.wg.Wait()
}

// drain is the writer goroutine: it empties the channel into the store.
func (r *Recorder) drain() {
	defer r.wg.Done()

	for entry := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.repo.Create(ctx, &entry); err != nil {
			r.logger.Error("writing audit entry failed",
				"action", entry.Action,
				"error", err,
			)
		}
		cancel()
	}
}
