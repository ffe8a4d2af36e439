// Package org holds the organisational reference data that every scoped
// query hangs off: regions, and the hospitals inside them.
//
// The hierarchy is deliberately shallow — region → hospital — and rarely
// changes. Role assignments, device keys, and telemetry rows all point
// into these tables, so deletion is conservative: a region with hospitals
// cannot be removed, and a hospital with issued device keys cannot either.
package org
