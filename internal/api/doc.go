// Package api hosts the HTTP server for operator access. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/universities and /v1/universities/{name}/directory.
//   - POST /v1/runs to queue a run, GET /v1/runs and /v1/runs/{run_id} to inspect them.
//   - GET /v1/runs/{run_id}/progress for the live tally of a running run.
package api
