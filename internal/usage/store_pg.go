package usage

import (
	"context"
	"database/sql"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Get(ctx context.Context, userID, plan string) (map[string]FeatureUsage, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = ensureFeatures(ctx, tx, userID, plan); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
SELECT feature, used, limit_amount FROM feature_usage WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]FeatureUsage)
	for rows.Next() {
		var feature string
		var fu FeatureUsage
		if err = rows.Scan(&feature, &fu.Used, &fu.Limit); err != nil {
			return nil, err
		}
		out[feature] = fu
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// Increment is a single-statement atomic bump so concurrent consumers never
// lose updates. The row is created at plan defaults when missing.
func (s *pgStore) Increment(ctx context.Context, userID, plan, feature string, n int) (FeatureUsage, error) {
	limit := PlanLimits(plan)[feature]
	var fu FeatureUsage
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO feature_usage (user_id, feature, used, limit_amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, feature) DO UPDATE
SET used = feature_usage.used + $3, updated_at = now()
RETURNING used, limit_amount`, userID, feature, n, limit).Scan(&fu.Used, &fu.Limit)
	if err != nil {
		return FeatureUsage{}, err
	}
	return fu, nil
}

func (s *pgStore) Grant(ctx context.Context, userID, plan, feature string, delta int) (FeatureUsage, error) {
	limit := PlanLimits(plan)[feature]
	var fu FeatureUsage
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO feature_usage (user_id, feature, used, limit_amount)
VALUES ($1, $2, 0, $3 + $4)
ON CONFLICT (user_id, feature) DO UPDATE
SET limit_amount = feature_usage.limit_amount + $4, updated_at = now()
RETURNING used, limit_amount`, userID, feature, limit, delta).Scan(&fu.Used, &fu.Limit)
	if err != nil {
		return FeatureUsage{}, err
	}
	return fu, nil
}

func (s *pgStore) Reset(ctx context.Context, userID, plan string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM feature_usage WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if err = ensureFeatures(ctx, tx, userID, plan); err != nil {
		return err
	}
	return tx.Commit()
}

func ensureFeatures(ctx context.Context, tx *sql.Tx, userID, plan string) error {
	limits := PlanLimits(plan)
	for _, feature := range Features() {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO feature_usage (user_id, feature, used, limit_amount)
VALUES ($1, $2, 0, $3)
ON CONFLICT (user_id, feature) DO NOTHING`, userID, feature, limits[feature]); err != nil {
			return err
		}
	}
	return nil
}
