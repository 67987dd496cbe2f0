// Package api hosts the admin HTTP server. Routes:
//   - GET /healthz and /readyz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the poll loop state.
//   - GET /v1/ledger for the ids already dispatched.
//   - GET /v1/cycles/last for the most recent cycle report.
package api
