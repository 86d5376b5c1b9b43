// Package middleware provides HTTP middleware for the plugman introspection
// server.
//
// RateLimitMiddleware guards the endpoints that trigger load passes. Each
// client, identified by its forwarded or remote address, gets a token bucket
// that refills at RequestsPerWindow tokens per WindowDuration and holds at
// most RequestsPerWindow+BurstSize tokens.
//
//	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
//	    RequestsPerWindow: 6,
//	    WindowDuration:    time.Minute,
//	})
//	router.Handle("/load", middleware.NewRateLimitMiddleware(limiter).Handler(loadHandler))
package middleware
