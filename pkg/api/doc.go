// Package api serves an HTTP view of the plugin manager.
//
// Routes:
//
//	GET  /plugins        loaded plugins in load order
//	GET  /plugins/{id}   a single loaded plugin
//	GET  /report         report of the last load pass
//	GET  /graph          dependency graph of discovered plugins (Cytoscape.js JSON)
//	POST /load           run a load pass (409 while one is running, 429 when rate limited)
//	GET  /health/live    liveness
//	GET  /health/ready   readiness derived from the last pass
//	GET  /metrics        Prometheus metrics, when enabled
package api
