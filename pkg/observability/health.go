package observability

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// LoadStatus is a snapshot of the plugin manager's state used for health checks
type LoadStatus struct {
	Completed bool      // At least one load pass finished
	Loading   bool      // A pass is running now
	Loaded    int       // Plugins held by the registry
	Excluded  int       // Plugins excluded by the last pass
	LastError error     // Error returned by the last pass
	LastPass  time.Time // Start of the last completed pass
}

// LoadStatusProvider reports the current plugin load status
type LoadStatusProvider interface {
	LoadStatus() LoadStatus
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	provider LoadStatusProvider
	version  string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(provider LoadStatusProvider, version string) *HealthChecker {
	return &HealthChecker{
		provider: provider,
		version:  version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Loaded    int       `json:"loaded"`
	Excluded  int       `json:"excluded"`
	Message   string    `json:"message,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns 503 until a load pass has completed without error
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check derives the health status from the plugin load status. A failed or
// missing pass is unhealthy; excluded plugins make it degraded.
func (h *HealthChecker) Check() HealthStatus {
	load := h.provider.LoadStatus()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
		Loaded:    load.Loaded,
		Excluded:  load.Excluded,
	}

	switch {
	case !load.Completed:
		status.Status = StatusUnhealthy
		status.Message = "no plugin load pass has completed"
	case load.LastError != nil:
		status.Status = StatusUnhealthy
		status.Message = load.LastError.Error()
	case load.Excluded > 0:
		status.Status = StatusDegraded
		status.Message = "some plugins were not eligible for loading"
	}

	return status
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
