package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tradejournalai/backend/internal/domain"
)

// OrderRepository persists the authoritative order snapshots taken at
// checkout time. Verification reads plan and amount back from here instead
// of trusting the callback body.
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores the snapshot for a freshly created gateway order.
func (r *OrderRepository) Create(ctx context.Context, o *domain.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders
			(order_id, user_id, plan_type, original_amount, final_amount,
			 discount_applied, discount_percent, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		o.OrderID, o.UserID, o.PlanType, o.OriginalAmount, o.FinalAmount,
		o.DiscountApplied, o.DiscountPercent, o.Status, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	return nil
}

// FindByID returns the snapshot for an order, or nil when unknown.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	row := r.db.QueryRow(ctx, `
		SELECT order_id, user_id, plan_type, original_amount, final_amount,
		       discount_applied, discount_percent, status, created_at
		FROM payment_orders WHERE order_id = $1
	`, orderID)

	var o domain.PaymentOrder
	err := row.Scan(&o.OrderID, &o.UserID, &o.PlanType, &o.OriginalAmount, &o.FinalAmount,
		&o.DiscountApplied, &o.DiscountPercent, &o.Status, &o.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment order: %w", err)
	}
	return &o, nil
}

// ClaimPaid flips an order from created to paid as a single compare-and-set
// and returns the claimed snapshot, or nil when the order is unknown or was
// already paid. This makes a replayed verification call a no-op.
func (r *OrderRepository) ClaimPaid(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder

	err := withConflictRetry(ctx, func() error {
		row := r.db.QueryRow(ctx, `
			UPDATE payment_orders
			SET status = $2
			WHERE order_id = $1 AND status = $3
			RETURNING order_id, user_id, plan_type, original_amount, final_amount,
			          discount_applied, discount_percent, status, created_at
		`, orderID, domain.OrderStatusPaid, domain.OrderStatusCreated)
		return row.Scan(&o.OrderID, &o.UserID, &o.PlanType, &o.OriginalAmount, &o.FinalAmount,
			&o.DiscountApplied, &o.DiscountPercent, &o.Status, &o.CreatedAt)
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim payment order: %w", err)
	}
	return &o, nil
}

// CountByStatus returns how many orders are in the given status.
func (r *OrderRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_orders WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}
