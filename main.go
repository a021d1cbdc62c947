// Package main hosts the insights service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, organization listing, and tiered lookups for
//     organizations, posts, people and comments, plus a composite acquire route and an optional summary route.
//   - Resolution: every lookup reads the cache, then the document store, and only then drives a headless browser
//     session through the extraction pipeline. Extracted records are upserted, reloaded and cached.
//   - Persistence & fanout: documents live in memory or Postgres (JSONB per collection, goose migrations). Rendered
//     page snapshots go to the configured BlobStore (memory/local/GCS), and a Pub/Sub event is published after each
//     composite acquisition when a publisher is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Browser sessions are bounded by extraction.max_sessions and paced per host by a token bucket.
//   - Cloud Run: the server reacts to SIGTERM for graceful drain within server.shutdown_seconds.
//
// Quick checklist:
//   - Configure env vars with the INSIGHTS_ prefix, e.g. INSIGHTS_STORE_DRIVER=postgres, INSIGHTS_STORE_DSN,
//     INSIGHTS_CACHE_DRIVER=redis, INSIGHTS_CACHE_ADDR, INSIGHTS_CREDENTIALS_EMAIL/PASSWORD.
//   - Run locally: go run . serve --config config.yaml
package main

import "github.com/JakeFAU/page-insights/cmd"

func main() {
	cmd.Execute()
}
