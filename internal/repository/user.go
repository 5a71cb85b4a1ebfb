package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tradejournalai/backend/internal/domain"
)

const userColumns = `id, username, email, password, role,
	sub_plan, sub_type, sub_started_at, sub_expires_at,
	ref_code, ref_referred_by, ref_redeemed_at,
	ref_discount_unlocked, ref_discount_percent,
	ref_total_referred, ref_total_reward_days,
	created_at, updated_at`

// UserRepository handles database operations for users.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var refCode *string
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Password, &u.Role,
		&u.Subscription.Plan, &u.Subscription.Type,
		&u.Subscription.StartedAt, &u.Subscription.ExpiresAt,
		&refCode, &u.Referral.ReferredBy, &u.Referral.RedeemedAt,
		&u.Referral.DiscountUnlocked, &u.Referral.DiscountPercent,
		&u.Referral.Stats.TotalReferred, &u.Referral.Stats.TotalRewardDays,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if refCode != nil {
		u.Referral.Code = *refCode
	}
	return &u, nil
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password, role,
			sub_plan, sub_type, sub_started_at, sub_expires_at,
			ref_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		u.ID, u.Username, u.Email, u.Password, u.Role,
		u.Subscription.Plan, u.Subscription.Type,
		u.Subscription.StartedAt, u.Subscription.ExpiresAt,
		u.Referral.Code, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID returns a user by ID, or nil when absent.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// FindByEmail returns a user by email address, or nil when absent.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// FindByReferralCode returns the owner of a referral code. Codes are stored
// uppercase; lookup is case-insensitive.
func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE ref_code = $1`,
		strings.ToUpper(strings.TrimSpace(code)),
	)
	u, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by referral code: %w", err)
	}
	return u, nil
}

// Exists checks if a user with the given email or username already exists.
func (r *UserRepository) Exists(ctx context.Context, email, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 OR username = $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, email, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// SetReferralCode assigns a referral code to a user that has none yet.
// Returns ErrDuplicate when another user already owns the code, so the
// caller can retry with a fresh suffix. The bool reports whether this call
// wrote the code; false means the user already had one, and the caller must
// read the stored code back rather than trust its own.
func (r *UserRepository) SetReferralCode(ctx context.Context, userID, code string) (bool, error) {
	ct, err := r.db.Exec(ctx,
		`UPDATE users SET ref_code = $2, updated_at = NOW() WHERE id = $1 AND ref_code IS NULL`,
		userID, code,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicate
		}
		return false, fmt.Errorf("failed to set referral code: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ApplyReferral records the inbound referral link and unlocks the discount
// on the referred user, as a single update.
func (r *UserRepository) ApplyReferral(ctx context.Context, userID, referrerID string, percent int, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET
			ref_referred_by = $2,
			ref_redeemed_at = $3,
			ref_discount_unlocked = TRUE,
			ref_discount_percent = $4,
			updated_at = NOW()
		WHERE id = $1
	`, userID, referrerID, now, percent)
	if err != nil {
		return fmt.Errorf("failed to apply referral: %w", err)
	}
	return nil
}

// ExtendSubscription applies a paid extension and consumes any unlocked
// referral discount in one atomic statement, so a concurrent profile edit
// cannot split the two writes. The new expiry stacks on a still-live expiry
// and restarts from now for lapsed or free users. Returns the resulting
// subscription and whether a discount was consumed.
func (r *UserRepository) ExtendSubscription(ctx context.Context, userID, planType string, durationDays int, now time.Time) (domain.Subscription, bool, error) {
	var sub domain.Subscription
	var discountUsed bool

	err := withConflictRetry(ctx, func() error {
		row := r.db.QueryRow(ctx, `
			WITH prev AS (
				SELECT id, ref_discount_unlocked FROM users WHERE id = $1
			)
			UPDATE users u SET
				sub_plan = 'pro',
				sub_type = $2,
				sub_started_at = COALESCE(u.sub_started_at, $3),
				sub_expires_at = GREATEST(COALESCE(u.sub_expires_at, $3), $3) + make_interval(days => $4),
				ref_discount_unlocked = FALSE,
				ref_discount_percent = 0,
				updated_at = NOW()
			FROM prev
			WHERE u.id = prev.id
			RETURNING u.sub_plan, u.sub_type, u.sub_started_at, u.sub_expires_at,
				prev.ref_discount_unlocked
		`, userID, planType, now, durationDays)
		return row.Scan(&sub.Plan, &sub.Type, &sub.StartedAt, &sub.ExpiresAt, &discountUsed)
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Subscription{}, false, pgx.ErrNoRows
		}
		return domain.Subscription{}, false, fmt.Errorf("failed to extend subscription: %w", err)
	}
	return sub, discountUsed, nil
}

// CreditReferrer grants reward days to a referrer and bumps their referral
// counters in one atomic statement. The referrer is always on pro
// afterwards, regardless of their prior plan; their billing type is left
// as-is.
func (r *UserRepository) CreditReferrer(ctx context.Context, referrerID string, rewardDays int, now time.Time) (domain.Subscription, error) {
	var sub domain.Subscription

	err := withConflictRetry(ctx, func() error {
		row := r.db.QueryRow(ctx, `
			UPDATE users SET
				sub_plan = 'pro',
				sub_started_at = COALESCE(sub_started_at, $2),
				sub_expires_at = GREATEST(COALESCE(sub_expires_at, $2), $2) + make_interval(days => $3),
				ref_total_referred = ref_total_referred + 1,
				ref_total_reward_days = ref_total_reward_days + $3,
				updated_at = NOW()
			WHERE id = $1
			RETURNING sub_plan, sub_type, sub_started_at, sub_expires_at
		`, referrerID, now, rewardDays)
		return row.Scan(&sub.Plan, &sub.Type, &sub.StartedAt, &sub.ExpiresAt)
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Subscription{}, pgx.ErrNoRows
		}
		return domain.Subscription{}, fmt.Errorf("failed to credit referrer: %w", err)
	}
	return sub, nil
}

// CountAll returns the total number of registered users.
func (r *UserRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CountActivePro returns the number of users whose pro subscription is
// still live at the database clock.
func (r *UserRepository) CountActivePro(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE sub_plan = 'pro' AND sub_expires_at > NOW()`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pro users: %w", err)
	}
	return n, nil
}

// ListAll returns all users ordered by creation date.
func (r *UserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
