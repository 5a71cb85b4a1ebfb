package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tradejournalai/backend/internal/domain"
)

// RedemptionRepository handles database operations for referral redemptions.
type RedemptionRepository struct {
	db *pgxpool.Pool
}

// NewRedemptionRepository creates a new RedemptionRepository.
func NewRedemptionRepository(db *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// Create inserts a new redemption record. Returns ErrDuplicate when the
// referred user already has one — the uniqueness constraint is the hard
// guard against applying a second code.
func (r *RedemptionRepository) Create(ctx context.Context, rec *domain.RedemptionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO referral_redemptions
			(id, referred_user_id, referrer_user_id, coupon_code, discount_percent, reward_processed, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.ReferredUserID, rec.ReferrerUserID,
		rec.CouponCode, rec.DiscountPercent, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create redemption: %w", err)
	}
	return nil
}

// FindByReferredUser returns the redemption for a referred user, or nil.
func (r *RedemptionRepository) FindByReferredUser(ctx context.Context, referredUserID string) (*domain.RedemptionRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, referred_user_id, referrer_user_id, coupon_code, discount_percent, reward_processed, created_at
		FROM referral_redemptions WHERE referred_user_id = $1
	`, referredUserID)

	var rec domain.RedemptionRecord
	err := row.Scan(&rec.ID, &rec.ReferredUserID, &rec.ReferrerUserID,
		&rec.CouponCode, &rec.DiscountPercent, &rec.RewardProcessed, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find redemption: %w", err)
	}
	return &rec, nil
}

// Claim flips the referred user's redemption from unprocessed to processed
// as a single compare-and-set, and returns the claimed record. Returns nil
// when there is nothing to claim — either the user was never referred or
// the reward was already granted. Two concurrent payment verifications for
// the same user can therefore never both credit the referrer.
func (r *RedemptionRepository) Claim(ctx context.Context, referredUserID string) (*domain.RedemptionRecord, error) {
	var rec domain.RedemptionRecord

	err := withConflictRetry(ctx, func() error {
		row := r.db.QueryRow(ctx, `
			UPDATE referral_redemptions
			SET reward_processed = TRUE
			WHERE referred_user_id = $1 AND reward_processed = FALSE
			RETURNING id, referred_user_id, referrer_user_id, coupon_code, discount_percent, reward_processed, created_at
		`, referredUserID)
		return row.Scan(&rec.ID, &rec.ReferredUserID, &rec.ReferrerUserID,
			&rec.CouponCode, &rec.DiscountPercent, &rec.RewardProcessed, &rec.CreatedAt)
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim redemption: %w", err)
	}
	return &rec, nil
}

// CountProcessed returns how many referral rewards have been granted.
func (r *RedemptionRepository) CountProcessed(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM referral_redemptions WHERE reward_processed`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count redemptions: %w", err)
	}
	return n, nil
}
