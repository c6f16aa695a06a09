package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

func (c *Credentials) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

// PostgresLedger keeps the order ledger in the order_ledger table.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(ctx context.Context, cred *Credentials) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", cred.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &PostgresLedger{db: db}, nil
}

func (l *PostgresLedger) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(l.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *PostgresLedger) Close() error {
	return l.db.Close()
}

func (l *PostgresLedger) Save(ctx context.Context, rec *domain.OrderRecord) error {
	const query = `
		INSERT INTO order_ledger
			(order_id, session_id, status, amount, currency, item_count, payer_email, payer_id, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id) DO UPDATE SET
			status      = EXCLUDED.status,
			amount      = EXCLUDED.amount,
			currency    = EXCLUDED.currency,
			item_count  = EXCLUDED.item_count,
			payer_email = EXCLUDED.payer_email,
			payer_id    = EXCLUDED.payer_id,
			published   = order_ledger.published OR EXCLUDED.published,
			updated_at  = NOW()`

	_, err := l.db.ExecContext(ctx, query,
		rec.OrderID, rec.SessionID, string(rec.Status), rec.Amount, rec.Currency,
		rec.ItemCount, rec.PayerEmail, rec.PayerID, rec.Published)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", rec.OrderID, err)
	}
	return nil
}

const selectColumns = `
	SELECT order_id, session_id, status, amount, currency, item_count,
	       payer_email, payer_id, published, created_at, updated_at
	FROM order_ledger`

func (l *PostgresLedger) Get(ctx context.Context, orderID string) (*domain.OrderRecord, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+` WHERE order_id = $1`, orderID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return rec, nil
}

func (l *PostgresLedger) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.OrderRecord, error) {
	return l.query(ctx, selectColumns+` WHERE status = $1 ORDER BY created_at LIMIT $2`, string(status), limit)
}

func (l *PostgresLedger) ListUnpublished(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	return l.query(ctx, selectColumns+` WHERE status = 'COMPLETED' AND published = FALSE ORDER BY created_at LIMIT $1`, limit)
}

func (l *PostgresLedger) MarkPublished(ctx context.Context, orderID string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE order_ledger SET published = TRUE, updated_at = NOW() WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order %s published: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (l *PostgresLedger) query(ctx context.Context, query string, args ...any) ([]*domain.OrderRecord, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.OrderRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.OrderRecord, error) {
	var rec domain.OrderRecord
	var status string
	err := s.Scan(&rec.OrderID, &rec.SessionID, &status, &rec.Amount, &rec.Currency, &rec.ItemCount,
		&rec.PayerEmail, &rec.PayerID, &rec.Published, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.OrderStatus(status)
	return &rec, nil
}
