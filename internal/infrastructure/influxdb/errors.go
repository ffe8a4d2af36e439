package influxdb

import "errors"

// Sentinel errors for the time-series mirror. The mirror is optional:
// a deployment without InfluxDB keeps readings in SQLite alone, and
// Connect refuses with ErrDisabled rather than guessing at a server.
var (
	// ErrNotConnected: the client was closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed: InfluxDB did not answer the startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled: the mirror is switched off in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
