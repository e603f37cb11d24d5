package handler

import (
	"net/http"
	"time"

	"mailseller-api/pkg/response"
)

// StartTime tracks when the server started for uptime calculation
var StartTime = time.Now()

// ReadyCheck probes one dependency; it returns an error when the
// dependency is unusable.
type ReadyCheck func() error

// Handler contains shared HTTP handlers and their dependencies.
type Handler struct {
	version string
	checks  map[string]ReadyCheck
}

// New creates a new handler.
func New(version string, checks map[string]ReadyCheck) *Handler {
	return &Handler{version: version, checks: checks}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(StartTime).Round(time.Second).String(),
	}
	response.OK(w, resp)
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Ready handles GET /api/v1/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make([]Check, 0, len(h.checks))
	allReady := true
	for name, probe := range h.checks {
		status := "ok"
		if err := probe(); err != nil {
			status = err.Error()
			allReady = false
		}
		checks = append(checks, Check{Name: name, Status: status})
	}

	resp := ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if !allReady {
		statusCode = http.StatusServiceUnavailable
	}
	response.JSON(w, statusCode, resp)
}
