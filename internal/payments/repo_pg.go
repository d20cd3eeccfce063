package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"interview-backend/internal/usage"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) CreateOrder(ctx context.Context, order Order) error {
	const query = `
INSERT INTO payment_orders (
	id, user_id, order_type, plan, feature, quantity, effective_quantity,
	amount, currency, status, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`
	_, err := r.DB.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.Type,
		nullable(order.Plan),
		nullable(order.Feature),
		order.Quantity,
		order.EffectiveQuantity,
		order.Amount,
		order.Currency,
		order.Status,
		order.CreatedAt,
	)
	return err
}

const orderColumns = `
id, user_id, order_type, plan, feature, quantity, effective_quantity,
amount, currency, status, payment_id, settled_at, created_at, updated_at`

func (r *PGRepo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE id = $1 LIMIT 1`
	order, err := scanOrder(r.DB.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return order, nil
}

// ClaimSettlement settles in a single guarded UPDATE so a replayed webhook
// or a concurrent verify cannot both win the claim.
func (r *PGRepo) ClaimSettlement(ctx context.Context, orderID, paymentID string, settledAt time.Time) (bool, Order, error) {
	query := `
UPDATE payment_orders
SET status = $1, payment_id = $2, settled_at = $3, updated_at = now()
WHERE id = $4 AND status = $5
RETURNING ` + orderColumns
	order, err := scanOrder(r.DB.QueryRowContext(ctx, query,
		OrderStatusSettled, paymentID, settledAt, orderID, OrderStatusCreated))
	if err == nil {
		return true, order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, Order{}, err
	}

	// Claim lost; report the current state instead.
	order, err = r.GetOrder(ctx, orderID)
	if err != nil {
		return false, Order{}, err
	}
	return false, order, nil
}

// SettleInTx claims the order, applies the purchase to the user's plan or
// feature limits, and writes the ledger entry in a single transaction. A
// failure anywhere rolls the claim back, so a retry can settle the order.
// It reports whether the claim was won plus the limits before and after an
// addon grant.
func (r *PGRepo) SettleInTx(ctx context.Context, orderID, paymentID, entryID string, settledAt time.Time) (bool, Order, int, int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, Order{}, 0, 0, err
	}
	defer tx.Rollback()

	claim := `
UPDATE payment_orders
SET status = $1, payment_id = $2, settled_at = $3, updated_at = now()
WHERE id = $4 AND status = $5
RETURNING ` + orderColumns
	order, err := scanOrder(tx.QueryRowContext(ctx, claim,
		OrderStatusSettled, paymentID, settledAt, orderID, OrderStatusCreated))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, Order{}, 0, 0, err
		}
		order, err = r.GetOrder(ctx, orderID)
		if err != nil {
			return false, Order{}, 0, 0, err
		}
		return false, order, 0, 0, nil
	}

	var previousLimit, newLimit int
	switch order.Type {
	case OrderTypeAddon:
		var plan string
		if err := tx.QueryRowContext(ctx, `SELECT plan FROM users WHERE id = $1`, order.UserID).Scan(&plan); err != nil {
			return false, Order{}, 0, 0, err
		}
		planLimit := usage.PlanLimits(usage.NormalizePlan(plan))[order.Feature]
		previousLimit = planLimit
		err := tx.QueryRowContext(ctx, `
SELECT limit_amount FROM feature_usage WHERE user_id = $1 AND feature = $2`,
			order.UserID, order.Feature).Scan(&previousLimit)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, Order{}, 0, 0, err
		}
		if err := tx.QueryRowContext(ctx, `
INSERT INTO feature_usage (user_id, feature, used, limit_amount)
VALUES ($1, $2, 0, $3 + $4)
ON CONFLICT (user_id, feature) DO UPDATE
SET limit_amount = feature_usage.limit_amount + $4, updated_at = now()
RETURNING limit_amount`,
			order.UserID, order.Feature, planLimit, order.EffectiveQuantity).Scan(&newLimit); err != nil {
			return false, Order{}, 0, 0, err
		}
	case OrderTypePlan:
		if _, err := tx.ExecContext(ctx, `
UPDATE users SET plan = $1, updated_at = now() WHERE id = $2`, order.Plan, order.UserID); err != nil {
			return false, Order{}, 0, 0, err
		}
		// New plan starts with fresh counters and the plan's own limits.
		if _, err := tx.ExecContext(ctx, `DELETE FROM feature_usage WHERE user_id = $1`, order.UserID); err != nil {
			return false, Order{}, 0, 0, err
		}
		limits := usage.PlanLimits(order.Plan)
		for _, feature := range usage.Features() {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO feature_usage (user_id, feature, used, limit_amount)
VALUES ($1, $2, 0, $3)`, order.UserID, feature, limits[feature]); err != nil {
				return false, Order{}, 0, 0, err
			}
		}
	default:
		return false, Order{}, 0, 0, fmt.Errorf("unknown order type %q", order.Type)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO usage_grants (
	id, order_id, user_id, grant_type, plan, feature, quantity, effective_quantity,
	amount, currency, previous_limit, new_limit, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entryID, order.ID, order.UserID, order.Type, nullable(order.Plan), nullable(order.Feature),
		order.Quantity, order.EffectiveQuantity, order.Amount, order.Currency,
		previousLimit, newLimit, settledAt); err != nil {
		return false, Order{}, 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return false, Order{}, 0, 0, err
	}
	return true, order, previousLimit, newLimit, nil
}

func (r *PGRepo) ReopenOrder(ctx context.Context, orderID string) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE payment_orders
SET status = $1, payment_id = NULL, settled_at = NULL, updated_at = now()
WHERE id = $2`,
		OrderStatusCreated, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PGRepo) AddLedger(ctx context.Context, entry LedgerEntry) error {
	const query = `
INSERT INTO usage_grants (
	id, order_id, user_id, grant_type, plan, feature, quantity, effective_quantity,
	amount, currency, previous_limit, new_limit, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.DB.ExecContext(ctx, query,
		entry.ID,
		entry.OrderID,
		entry.UserID,
		entry.Type,
		nullable(entry.Plan),
		nullable(entry.Feature),
		entry.Quantity,
		entry.EffectiveQuantity,
		entry.Amount,
		entry.Currency,
		entry.PreviousLimit,
		entry.NewLimit,
		entry.CreatedAt,
	)
	return err
}

func (r *PGRepo) ListLedgerByUser(ctx context.Context, userID string) ([]LedgerEntry, error) {
	const query = `
SELECT id, order_id, user_id, grant_type, plan, feature, quantity, effective_quantity,
       amount, currency, previous_limit, new_limit, created_at
FROM usage_grants
WHERE user_id = $1
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LedgerEntry{}
	for rows.Next() {
		var entry LedgerEntry
		var plan, feature sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.OrderID, &entry.UserID, &entry.Type, &plan, &feature,
			&entry.Quantity, &entry.EffectiveQuantity, &entry.Amount, &entry.Currency,
			&entry.PreviousLimit, &entry.NewLimit, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Plan = plan.String
		entry.Feature = feature.String
		out = append(out, entry)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var order Order
	var plan, feature, paymentID sql.NullString
	var settledAt sql.NullTime
	err := row.Scan(
		&order.ID, &order.UserID, &order.Type, &plan, &feature,
		&order.Quantity, &order.EffectiveQuantity, &order.Amount, &order.Currency,
		&order.Status, &paymentID, &settledAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	order.Plan = plan.String
	order.Feature = feature.String
	if paymentID.Valid {
		order.PaymentID = &paymentID.String
	}
	if settledAt.Valid {
		t := settledAt.Time
		order.SettledAt = &t
	}
	return order, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
