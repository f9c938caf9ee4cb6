// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs/fetchable and /v1/jobs/standalone for job submission.
//   - GET /v1/jobs and /v1/jobs/{job_id} for job and task status.
//   - POST /v1/jobs/{job_id}/retry to re-queue an erred job.
package api
