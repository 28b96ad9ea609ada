// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /generate_excel runs the pipeline and streams the spreadsheet.
//   - GET /v1/runs lists recent run summaries from the RunStore.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
