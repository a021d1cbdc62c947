// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/organizations for filtered, paginated listing of stored organizations.
//   - GET /v1/organizations/{page_id}[/posts|/people|/summary] for tiered lookups.
//   - POST /v1/organizations/{page_id}/acquire for a full refresh.
//   - GET /v1/posts/{post_id}/comments for comment lookups.
//
// Lookup routes accept force_refresh=true to bypass the cache and the store.
package api
