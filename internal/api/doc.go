// Package api hosts the status HTTP server. Routes:
//   - GET /healthz and /readyz for probes; readyz fails while no pool is
//     active or a restart is in flight.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status and /v1/targets for monitor state.
//   - POST /v1/pool/restart to recycle the browser pool by hand.
package api
