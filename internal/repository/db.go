package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicate is returned when an insert or update violates a uniqueness
// constraint (referral code, redemption per referred user, username/email).
var ErrDuplicate = errors.New("duplicate row")

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the initial schema migration.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id                    TEXT PRIMARY KEY,
			username              TEXT NOT NULL UNIQUE,
			email                 TEXT NOT NULL UNIQUE,
			password              TEXT NOT NULL,
			role                  TEXT NOT NULL DEFAULT 'user',
			sub_plan              TEXT NOT NULL DEFAULT 'free',
			sub_type              TEXT NOT NULL DEFAULT 'monthly',
			sub_started_at        TIMESTAMPTZ,
			sub_expires_at        TIMESTAMPTZ,
			ref_code              TEXT UNIQUE,
			ref_referred_by       TEXT,
			ref_redeemed_at       TIMESTAMPTZ,
			ref_discount_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
			ref_discount_percent  INT NOT NULL DEFAULT 0,
			ref_total_referred    INT NOT NULL DEFAULT 0,
			ref_total_reward_days INT NOT NULL DEFAULT 0,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_users_ref_code ON users(ref_code);

		CREATE TABLE IF NOT EXISTS referral_redemptions (
			id               TEXT PRIMARY KEY,
			referred_user_id TEXT NOT NULL UNIQUE,
			referrer_user_id TEXT NOT NULL,
			coupon_code      TEXT NOT NULL,
			discount_percent INT NOT NULL DEFAULT 10,
			reward_processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_redemptions_referrer ON referral_redemptions(referrer_user_id);

		CREATE TABLE IF NOT EXISTS payment_orders (
			order_id         TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			plan_type        TEXT NOT NULL,
			original_amount  INT NOT NULL,
			final_amount     INT NOT NULL,
			discount_applied BOOLEAN NOT NULL DEFAULT FALSE,
			discount_percent INT NOT NULL DEFAULT 0,
			status           TEXT NOT NULL DEFAULT 'created',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payment_orders_user ON payment_orders(user_id);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isSerializationFailure reports whether err is a transient conflict that a
// bounded retry of the same statement may resolve (serialization failure or
// deadlock).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

// withConflictRetry runs fn, retrying the single step a bounded number of
// times on transient persistence conflicts. The whole calling sequence is
// never replayed, only this step.
func withConflictRetry(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isSerializationFailure(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 25 * time.Millisecond):
		}
	}
	return err
}
