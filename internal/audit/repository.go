package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLimit    = 50
	maxLimit        = 1000
	topActorsLimit  = 5
	recentCritLimit = 10
)

// Repository defines the interface for audit trail persistence.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an audit entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}

	var detailsJSON *string
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, username, action, resource_type, resource_id,
		   details, ip_address, user_agent, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullableString(entry.UserID), nullableString(entry.Username),
		entry.Action, nullableString(entry.ResourceType), nullableString(entry.ResourceID),
		detailsJSON, nullableString(entry.IPAddress), nullableString(entry.UserAgent),
		entry.Status, entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit entries matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit,gocyclo // dynamic query builder: WHERE clause assembly from filter fields
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	// Get paginated results.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, user_id, username, action, resource_type, resource_id,
		   details, ip_address, user_agent, status, created_at
		 FROM audit_logs %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Stats computes the rolled-up activity summary relative to now.
func (r *SQLiteRepository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	now = now.UTC()
	cut24h := now.Add(-24 * time.Hour).Format(time.RFC3339)
	cut7d := now.Add(-7 * 24 * time.Hour).Format(time.RFC3339)
	cut30d := now.Add(-30 * 24 * time.Hour).Format(time.RFC3339)

	var s Stats

	if err := r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(CASE WHEN created_at >= ? THEN 1 END),
		   COUNT(CASE WHEN created_at >= ? THEN 1 END),
		   COUNT(CASE WHEN created_at >= ? THEN 1 END),
		   COUNT(CASE WHEN created_at >= ? AND action = ? AND status = ? THEN 1 END)
		 FROM audit_logs WHERE created_at >= ?`,
		cut24h, cut7d, cut30d, cut24h, ActionLogin, StatusFailure, cut30d,
	).Scan(&s.Events24h, &s.Events7d, &s.Events30d, &s.FailedLogins24h); err != nil {
		return nil, fmt.Errorf("counting audit windows: %w", err)
	}

	actors, err := r.topActors(ctx, cut30d)
	if err != nil {
		return nil, err
	}
	s.TopActors = actors

	critical, err := r.recentCritical(ctx)
	if err != nil {
		return nil, err
	}
	s.RecentCritical = critical

	return &s, nil
}

// topActors returns the busiest usernames inside the window.
func (r *SQLiteRepository) topActors(ctx context.Context, since string) ([]ActorCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT username, COUNT(*) AS n FROM audit_logs
		 WHERE created_at >= ? AND username IS NOT NULL
		 GROUP BY username ORDER BY n DESC, username ASC LIMIT ?`,
		since, topActorsLimit)
	if err != nil {
		return nil, fmt.Errorf("querying top actors: %w", err)
	}
	defer rows.Close()

	actors := []ActorCount{}
	for rows.Next() {
		var a ActorCount
		if err := rows.Scan(&a.Username, &a.Count); err != nil {
			return nil, fmt.Errorf("scanning actor row: %w", err)
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actor rows: %w", err)
	}
	return actors, nil
}

// recentCritical returns the newest security-relevant mutations.
func (r *SQLiteRepository) recentCritical(ctx context.Context) ([]Entry, error) {
	placeholders := strings.Repeat("?,", len(CriticalActions))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(CriticalActions)+1)
	for _, a := range CriticalActions {
		args = append(args, a)
	}
	args = append(args, recentCritLimit)

	query := fmt.Sprintf( //nolint:gosec // placeholders only, values bound as parameters
		`SELECT id, user_id, username, action, resource_type, resource_id,
		   details, ip_address, user_agent, status, created_at
		 FROM audit_logs WHERE action IN (%s)
		 ORDER BY created_at DESC, id DESC LIMIT ?`, placeholders)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying critical entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// scanEntries drains a cursor of audit rows.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var userID, username, resourceType, resourceID sql.NullString
		var detailsJSON, ipAddress, userAgent sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &userID, &username, &e.Action, &resourceType, &resourceID,
			&detailsJSON, &ipAddress, &userAgent, &e.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		if userID.Valid {
			e.UserID = userID.String
		}
		if username.Valid {
			e.Username = username.String
		}
		if resourceType.Valid {
			e.ResourceType = resourceType.String
		}
		if resourceID.Valid {
			e.ResourceID = resourceID.String
		}
		if ipAddress.Valid {
			e.IPAddress = ipAddress.String
		}
		if userAgent.Valid {
			e.UserAgent = userAgent.String
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				e.Details = details
			}
		}

		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
