package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ignite/playerpulse/internal/segmentation"
)

// SegmentRepo persists segment assignments per dataset build.
type SegmentRepo struct{ db *sql.DB }

// NewSegmentRepo creates a Postgres-backed segment repository.
func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

// SaveAssignment replaces the stored labels for a dataset build. Users are
// written in sorted order so repeated saves issue identical statements.
func (r *SegmentRepo) SaveAssignment(ctx context.Context, a *segmentation.Assignment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin segment save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM segment_labels WHERE dataset_id = $1`, a.StoreID,
	); err != nil {
		return fmt.Errorf("clear segment labels: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segment_labels (dataset_id, user_id, label)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()

	users := make([]string, 0, len(a.Labels))
	for u := range a.Labels {
		users = append(users, u)
	}
	sort.Strings(users)

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, a.StoreID, u, string(a.Labels[u])); err != nil {
			return fmt.Errorf("insert segment label for %s: %w", u, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segment save: %w", err)
	}
	return nil
}

// UsersInSegment returns the user IDs carrying a label for a dataset build.
func (r *SegmentRepo) UsersInSegment(ctx context.Context, datasetID uuid.UUID, label segmentation.Label) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id
		FROM segment_labels
		WHERE dataset_id = $1 AND label = $2
		ORDER BY user_id
	`, datasetID, string(label))
	if err != nil {
		return nil, fmt.Errorf("query segment users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan segment user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
