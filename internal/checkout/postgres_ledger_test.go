package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *PostgresLedger {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	ledger, err := NewPostgresLedger(ctx, creds)
	require.NoError(t, err)
	require.NoError(t, ledger.RunMigrations(creds))

	t.Cleanup(func() {
		ledger.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return ledger
}

func TestPostgresLedger_Lifecycle(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	orderID := uuid.NewString()

	_, err := ledger.Get(ctx, orderID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	rec := &domain.OrderRecord{
		OrderID:   orderID,
		SessionID: "session-1",
		Status:    domain.OrderStatusCreated,
		Amount:    decimal.RequireFromString("39.98"),
		Currency:  "USD",
		ItemCount: 1,
	}
	require.NoError(t, ledger.Save(ctx, rec))

	got, err := ledger.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, got.Status)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("39.98")))
	assert.False(t, got.CreatedAt.IsZero())

	rec.Status = domain.OrderStatusCaptured
	rec.PayerEmail = "buyer@example.com"
	rec.PayerID = "PAYER1"
	require.NoError(t, ledger.Save(ctx, rec))

	captured, err := ledger.ListByStatus(ctx, domain.OrderStatusCaptured, 10)
	require.NoError(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, "buyer@example.com", captured[0].PayerEmail)

	rec.Status = domain.OrderStatusCompleted
	require.NoError(t, ledger.Save(ctx, rec))

	unpublished, err := ledger.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unpublished, 1)

	require.NoError(t, ledger.MarkPublished(ctx, orderID))
	require.NoError(t, ledger.Save(ctx, rec))

	unpublished, err = ledger.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unpublished)

	assert.ErrorIs(t, ledger.MarkPublished(ctx, "missing"), ErrOrderNotFound)
}
