// Package influxdb provides InfluxDB connectivity for ClearWave Core.
//
// It wraps the official influxdb-client-go v2 library with ClearWave-specific
// patterns for connection management, reading mirroring, and health monitoring.
//
// # Purpose
//
// This package mirrors accepted environmental sensor readings (temperature,
// humidity, air quality) to a time-series store for dashboards and long-range
// trend queries. SQLite remains the source of truth; the mirror is optional
// and best-effort.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "clearwave",
//	    Bucket: "readings",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	temp := 21.5
//	client.WriteSensorReading("hos-0001", "sensor-ward3-temp", &temp, nil, nil, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
