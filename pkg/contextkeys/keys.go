// Package contextkeys provides centralized context key definitions
//
// All context keys used across plugman are defined here so key usage stays
// discoverable and typo-free.
//
//	ctx = contextkeys.WithPassID(ctx, passID)
//	passID := contextkeys.GetPassID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: request logging, load passes triggered over HTTP
	RequestIDKey Key = "request_id"

	// PassIDKey contains the ID of the running load pass
	// Set by: plugins.Manager.LoadAllPlugins
	// Used by: loader logging, plugin activation hooks
	PassIDKey Key = "pass_id"

	// LoggerKey contains a *logrus.Entry
	// Set by: observability.WithLogger
	// Used by: activation hooks that log with plugin and pass fields
	LoggerKey Key = "logger"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithPassID adds a load pass ID to the context
func WithPassID(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, PassIDKey, passID)
}

// GetPassID retrieves the load pass ID from context
func GetPassID(ctx context.Context) string {
	if passID, ok := ctx.Value(PassIDKey).(string); ok {
		return passID
	}
	return ""
}
