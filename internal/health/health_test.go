package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestMonitor_HTTP(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.Register("redis", func(context.Context) error { return nil })

	m.Evaluate(context.Background())
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"redis":"ok"}}`, rec.Body.String())
}

func TestMonitor_FailingCheck(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.Register("redis", func(context.Context) error { return nil })
	m.Register("ledger", func(context.Context) error { return errors.New("connection refused") })

	report := m.Evaluate(context.Background())

	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "connection refused", report.Checks["ledger"])
	assert.Equal(t, "ok", report.Checks["redis"])

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitor_GRPC(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	healthy := true
	m.Register("dep", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})
	m.Evaluate(context.Background())

	lis := bufconn.Listen(1 << 20)
	srv := m.NewGRPCServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	healthy = false
	m.Evaluate(context.Background())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	calls := make(chan struct{}, 10)
	m.Register("dep", func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(calls) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
