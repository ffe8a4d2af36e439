// Package telemetry stores and serves sensor readings.
//
// Readings arrive over HTTP or MQTT, always through an authenticated
// device identity — the sensor id on the wire is never trusted, only
// the one bound to the presenting key. Accepted readings land in
// SQLite; when an InfluxDB mirror is configured the numeric fields are
// copied there too, best effort.
//
// Reads are scope-narrowed: a hospital user sees one hospital, a region
// admin sees their region, an admin sees the fleet. The fleet overview
// classifies each registered sensor as active (reported within the
// hour), stale, or inactive (silent for a day or more).
package telemetry
