package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/playerpulse/internal/churn"
	"github.com/ignite/playerpulse/internal/segmentation"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestChurnRepoSavePrediction(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewChurnRepo(db)

	datasetID := uuid.New()
	p := &churn.Prediction{
		StoreID:     datasetID,
		Cutoff:      time.Date(2024, 3, 23, 0, 0, 0, 0, time.UTC),
		HorizonDays: 7,
		BuiltAt:     time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC),
		Scores: []churn.Score{
			{UserID: "u1", Probability: 0.91, Tier: churn.RiskHigh},
			{UserID: "u2", Probability: 0.12, Tier: churn.RiskLow},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM churn_scores").
		WithArgs(datasetID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO churn_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare("INSERT INTO churn_scores")
	mock.ExpectExec("INSERT INTO churn_scores").
		WithArgs(datasetID, "u1", 0.91, "high").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO churn_scores").
		WithArgs(datasetID, "u2", 0.12, "low").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := repo.SavePrediction(context.Background(), p); err != nil {
		t.Fatalf("SavePrediction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestChurnRepoSaveRollsBackOnError(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewChurnRepo(db)

	datasetID := uuid.New()
	p := &churn.Prediction{StoreID: datasetID}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM churn_scores").
		WithArgs(datasetID).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if err := repo.SavePrediction(context.Background(), p); err == nil {
		t.Fatal("expected error from failed delete")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestChurnRepoHighRiskUsers(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewChurnRepo(db)

	datasetID := uuid.New()
	rows := sqlmock.NewRows([]string{"user_id", "probability", "tier"}).
		AddRow("u9", 0.95, "high").
		AddRow("u4", 0.81, "high")

	mock.ExpectQuery("SELECT user_id, probability, tier").
		WithArgs(datasetID, "high", 10).
		WillReturnRows(rows)

	scores, err := repo.HighRiskUsers(context.Background(), datasetID, 10)
	if err != nil {
		t.Fatalf("HighRiskUsers: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("scores = %d, want 2", len(scores))
	}
	if scores[0].UserID != "u9" || scores[0].Tier != churn.RiskHigh {
		t.Errorf("first score = %+v", scores[0])
	}
}

func TestSegmentRepoSaveAssignment(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)

	datasetID := uuid.New()
	a := &segmentation.Assignment{
		StoreID: datasetID,
		Labels: map[string]segmentation.Label{
			"zed": segmentation.LabelFree,
			"amy": segmentation.LabelWhale,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM segment_labels").
		WithArgs(datasetID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO segment_labels")
	// Sorted user order: amy before zed.
	mock.ExpectExec("INSERT INTO segment_labels").
		WithArgs(datasetID, "amy", "whale").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO segment_labels").
		WithArgs(datasetID, "zed", "free").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := repo.SaveAssignment(context.Background(), a); err != nil {
		t.Fatalf("SaveAssignment: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSegmentRepoUsersInSegment(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)

	datasetID := uuid.New()
	rows := sqlmock.NewRows([]string{"user_id"}).AddRow("amy").AddRow("bob")

	mock.ExpectQuery("SELECT user_id").
		WithArgs(datasetID, "whale").
		WillReturnRows(rows)

	users, err := repo.UsersInSegment(context.Background(), datasetID, segmentation.LabelWhale)
	if err != nil {
		t.Fatalf("UsersInSegment: %v", err)
	}
	if len(users) != 2 || users[0] != "amy" {
		t.Errorf("users = %v", users)
	}
}
