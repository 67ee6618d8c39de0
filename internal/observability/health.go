package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
}

// HealthCheckResponse represents the overall health check response.
type HealthCheckResponse struct {
	Status        HealthStatus               `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     string                     `json:"timestamp"`
	Checks        map[string]ComponentHealth `json:"checks"`
}

// HealthChecker performs health checks on system components.
type HealthChecker struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheckFunc
}

// HealthCheckFunc defines a function that checks component health.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck registers a health check for a component.
func (hc *HealthChecker) RegisterCheck(name string, checkFunc HealthCheckFunc) {
	hc.checks[name] = checkFunc
}

// Check performs all health checks.
func (hc *HealthChecker) Check(ctx context.Context) HealthCheckResponse {
	response := HealthCheckResponse{
		Status:        HealthStatusOK,
		Version:       hc.version,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
		Checks:        make(map[string]ComponentHealth),
	}

	for name, checkFunc := range hc.checks {
		health := checkFunc(ctx)
		response.Checks[name] = health

		// Update overall status
		if health.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if health.Status == HealthStatusDegraded && response.Status != HealthStatusUnhealthy {
			response.Status = HealthStatusDegraded
		}
	}

	return response
}

// Handler returns an HTTP handler for health checks.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := hc.Check(ctx)

		w.Header().Set("Content-Type", "application/json")

		// Set HTTP status based on health
		switch response.Status {
		case HealthStatusOK:
			w.WriteHeader(http.StatusOK)
		case HealthStatusDegraded:
			w.WriteHeader(http.StatusOK) // Still 200 but degraded
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// Common health check functions

// DispatchListenerCheck reports the TCP chunk listener's address with an OK
// status. It does not probe the listener.
func DispatchListenerCheck(addr string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{
			Status:  HealthStatusOK,
			Message: fmt.Sprintf("chunk listener on %s", addr),
		}
	}
}

// DiscoveryResponderCheck checks whether the multicast discovery responder
// has joined its group.
func DiscoveryResponderCheck(joined bool, groupAddr string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if joined {
			return ComponentHealth{
				Status:  HealthStatusOK,
				Message: fmt.Sprintf("joined discovery group %s", groupAddr),
			}
		}
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("not joined to discovery group %s", groupAddr),
		}
	}
}

// WorkerQueueCheck reports degraded status once a worker's pending queue
// crosses highWaterMark, since a backed-up queue means new chunks will wait.
func WorkerQueueCheck(queueLen func() int, highWaterMark int) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		n := queueLen()
		if n > highWaterMark {
			return ComponentHealth{
				Status:  HealthStatusDegraded,
				Message: fmt.Sprintf("queue depth %d exceeds %d", n, highWaterMark),
			}
		}
		return ComponentHealth{
			Status:  HealthStatusOK,
			Message: fmt.Sprintf("queue depth %d", n),
		}
	}
}

// AuditLedgerCheck reports the optional audit ledger's state from dbPath and
// the open flag passed in: OK when disabled or open, degraded otherwise. It
// does not touch the ledger file.
func AuditLedgerCheck(dbPath string, open bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		latency := time.Since(start).Milliseconds()

		if dbPath == "" {
			return ComponentHealth{
				Status:  HealthStatusOK,
				Message: "audit ledger disabled",
			}
		}
		if open {
			return ComponentHealth{
				Status:    HealthStatusOK,
				Message:   fmt.Sprintf("audit ledger open at %s", dbPath),
				LatencyMS: latency,
			}
		}
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("audit ledger configured at %s but not open; dispatch continues without it", dbPath),
		}
	}
}
