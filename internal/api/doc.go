// Package api implements the HTTP REST API for ClearWave Core.
//
// This package provides:
//   - Auth endpoints (register, login, two-factor, token refresh)
//   - Admin endpoints for users, regions, hospitals, device keys, and
//     the registration whitelist
//   - Telemetry endpoints for sensor ingest and scoped reads
//   - Audit log queries and dashboard statistics
//   - Middleware stack (request ID, logging, recovery, CORS, body cap)
//   - TLS support for production deployments
//
// # Security
//
// Browser and app clients authenticate with short-lived JWT access
// tokens; role and scope travel in the token, so authorisation needs no
// database hit. Region admins see and assign only accounts and hospitals
// inside their own region; everything out of scope reads as not found.
// Sensors authenticate with an X-API-Key header instead — a device key
// never grants access to any read endpoint.
//
// # Graceful Degradation
//
// The server operates without MQTT and without InfluxDB — HTTP ingest
// and all reads keep working; only broker-fed readings and the metrics
// mirror go quiet.
package api
