// Package api hosts the HTTP server, middleware, and REST handlers for the
// batch service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/batches to queue a batch; the body is a task file in JSON.
//   - GET /v1/batches/{batch_id} for status and summary.
//   - GET /v1/batches/{batch_id}/records for the sorted rows as JSON or CSV.
package api
