// Package httputil provides the JSON response helpers and middleware used by
// the plugin introspection server.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteNotFoundError(w, "plugin not found")
//	httputil.WriteConflict(w, "load pass already running")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
//
// # Related Packages
//
//   - pkg/api: Plugin introspection handlers
package httputil
