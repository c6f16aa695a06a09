package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported for the storefront.
const ServiceName = "storefront"

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Monitor runs dependency checks and publishes the result over HTTP and the
// gRPC health protocol.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
	last   Report
	grpc   *grpchealth.Server
	logger *zap.Logger
}

func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
		last:   Report{Status: "ok"},
		grpc:   grpchealth.NewServer(),
		logger: logger,
	}
}

func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Evaluate runs every check once and updates the published status.
func (m *Monitor) Evaluate(ctx context.Context) Report {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	report := Report{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		m.mu.RLock()
		check := m.checks[name]
		m.mu.RUnlock()

		if err := check(ctx); err != nil {
			m.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			report.Status = "degraded"
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}

	status := healthpb.HealthCheckResponse_SERVING
	if report.Status != "ok" {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.grpc.SetServingStatus("", status)
	m.grpc.SetServingStatus(ServiceName, status)

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()
	return report
}

// Run re-evaluates the checks every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.evaluateWithTimeout(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evaluateWithTimeout(ctx, interval)
		case <-ctx.Done():
			m.grpc.Shutdown()
			return
		}
	}
}

func (m *Monitor) evaluateWithTimeout(ctx context.Context, timeout time.Duration) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	m.Evaluate(checkCtx)
}

func (m *Monitor) Last() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// ServeHTTP answers with the last report; 503 when a dependency is down.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := m.Last()
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		m.logger.Error("failed to encode health report", zap.Error(err))
	}
}

// NewGRPCServer returns a gRPC server exposing grpc.health.v1.Health.
func (m *Monitor) NewGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, m.grpc)
	reflection.Register(srv)
	return srv
}
