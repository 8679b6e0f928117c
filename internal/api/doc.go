// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/players and /v1/players/{itsf_id} for serving stored records.
//   - POST /v1/ingest/... for starting background ingestion runs.
//   - GET /v1/ingest/status for the current run snapshot.
package api
