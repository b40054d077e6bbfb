package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/playerpulse/internal/churn"
)

// ChurnRepo persists churn predictions per dataset build.
type ChurnRepo struct{ db *sql.DB }

// NewChurnRepo creates a Postgres-backed churn score repository.
func NewChurnRepo(db *sql.DB) *ChurnRepo { return &ChurnRepo{db: db} }

// SavePrediction replaces the stored scores for a dataset build. Old scores
// for the same build are dropped first so re-runs stay idempotent.
func (r *ChurnRepo) SavePrediction(ctx context.Context, p *churn.Prediction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin churn save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM churn_scores WHERE dataset_id = $1`, p.StoreID,
	); err != nil {
		return fmt.Errorf("clear churn scores: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO churn_runs (dataset_id, cutoff, horizon_days, accuracy, low_confidence, built_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dataset_id) DO UPDATE SET
			cutoff = EXCLUDED.cutoff,
			horizon_days = EXCLUDED.horizon_days,
			accuracy = EXCLUDED.accuracy,
			low_confidence = EXCLUDED.low_confidence,
			built_at = EXCLUDED.built_at
	`, p.StoreID, p.Cutoff, p.HorizonDays, p.Eval.Accuracy, p.LowConfidence, p.BuiltAt); err != nil {
		return fmt.Errorf("save churn run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO churn_scores (dataset_id, user_id, probability, tier)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare churn insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range p.Scores {
		if _, err := stmt.ExecContext(ctx, p.StoreID, s.UserID, s.Probability, string(s.Tier)); err != nil {
			return fmt.Errorf("insert churn score for %s: %w", s.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit churn save: %w", err)
	}
	return nil
}

// HighRiskUsers returns the users in the high tier for a dataset build,
// ordered by descending probability.
func (r *ChurnRepo) HighRiskUsers(ctx context.Context, datasetID uuid.UUID, limit int) ([]churn.Score, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, probability, tier
		FROM churn_scores
		WHERE dataset_id = $1 AND tier = $2
		ORDER BY probability DESC
		LIMIT $3
	`, datasetID, string(churn.RiskHigh), limit)
	if err != nil {
		return nil, fmt.Errorf("query high-risk users: %w", err)
	}
	defer rows.Close()

	var out []churn.Score
	for rows.Next() {
		var s churn.Score
		var tier string
		if err := rows.Scan(&s.UserID, &s.Probability, &tier); err != nil {
			return nil, fmt.Errorf("scan churn score: %w", err)
		}
		s.Tier = churn.RiskTier(tier)
		out = append(out, s)
	}
	return out, rows.Err()
}
