// Package timeouts provides centralized timeout constants for the
// HTTP surface. Pipeline timing (buffer windows, dedupe, handoff) is
// runtime-configurable and lives in config instead; these values only
// shape the server itself and rarely need tuning per deployment.
package timeouts

import "time"

// HTTP server timeouts. LINE sends small JSON payloads and expects a
// prompt 200, so read stays short; write leaves room for the
// back-pressure case where event processing lags behind the response.
const (
	HTTPRead  = 10 * time.Second
	HTTPWrite = 30 * time.Second
	HTTPIdle  = 120 * time.Second
)

// Healthcheck is the probe client budget used by cmd/healthcheck.
// Below typical container orchestrator probe windows (10s).
const Healthcheck = 8 * time.Second
