// Package api hosts the status server that runs alongside a command when a
// metrics address is configured. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for a JSON snapshot of the current session counters.
package api
