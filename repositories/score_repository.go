package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ranqly/contest-engine/models"
)

var ErrScoreRecordNotFound = errors.New("score record not found")

type ScoreRepository interface {
	// UpsertAlgorithmic пишет алгоритмическую оценку работы; запись
	// создаётся при первом обращении.
	UpsertAlgorithmic(ctx context.Context, exec SQLExecutor, contestID, entryID int, score float64) error
	UpsertCommunity(ctx context.Context, exec SQLExecutor, contestID, entryID int, score float64) error
	UpsertJudge(ctx context.Context, exec SQLExecutor, contestID, entryID int, score float64) error
	SetFinal(ctx context.Context, exec SQLExecutor, contestID, entryID, final int, frozenAt time.Time) error
	GetByEntry(ctx context.Context, exec SQLExecutor, contestID, entryID int) (*models.ScoreRecord, error)
	ListByContest(ctx context.Context, exec SQLExecutor, contestID int) ([]models.ScoreRecord, error)
}

type postgresScoreRepository struct {
	db *sql.DB
}

func NewPostgresScoreRepository(db *sql.DB) ScoreRepository {
	return &postgresScoreRepository{db: db}
}

func (r *postgresScoreRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresScoreRepository) upsertColumn(ctx context.Context, exec SQLExecutor, column string, contestID, entryID int, score float64) error {
	executor := r.getExecutor(exec)
	// column подставляется только из фиксированного набора вызовов ниже.
	query := fmt.Sprintf(`
		INSERT INTO score_records (contest_id, entry_id, %[1]s)
		VALUES ($1, $2, $3)
		ON CONFLICT (contest_id, entry_id) DO UPDATE SET
			%[1]s = EXCLUDED.%[1]s,
			updated_at = NOW()`, column)

	_, err := executor.ExecContext(ctx, query, contestID, entryID, score)
	if err != nil {
		return fmt.Errorf("failed to upsert %s score: %w", column, err)
	}
	return nil
}

func (r *postgresScoreRepository) UpsertAlgorithmic(ctx context.Context, exec SQLExecutor, contestID, entryID int, score float64) error {
	return r.upsertColumn(ctx, exec, "algorithmic_score", contestID, entryID, score)
}

func (r *postgresScoreRepository) UpsertCommunity(ctx context.Context, exec SQLExecutor, contestID, entryID int, score float64) error {
	return r.upsertColumn(ctx, exec, "community_score", contestID, entryID, score)
}

func (r *postgresScoreRepository) UpsertJudge(ctx context.Context, exec SQLExecutor, contestID, entryID int, score float64) error {
	return r.upsertColumn(ctx, exec, "judge_score", contestID, entryID, score)
}

func (r *postgresScoreRepository) SetFinal(ctx context.Context, exec SQLExecutor, contestID, entryID, final int, frozenAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE score_records SET final_score = $3, frozen_at = $4, updated_at = NOW()
		WHERE contest_id = $1 AND entry_id = $2`,
		contestID, entryID, final, frozenAt)
	if err != nil {
		return fmt.Errorf("failed to set final score: %w", err)
	}
	return checkAffectedRows(result, ErrScoreRecordNotFound)
}

const scoreColumns = `
	id, contest_id, entry_id, algorithmic_score, community_score, judge_score,
	final_score, frozen_at, updated_at`

func scanScore(row interface{ Scan(dest ...interface{}) error }) (*models.ScoreRecord, error) {
	s := &models.ScoreRecord{}
	err := row.Scan(
		&s.ID, &s.ContestID, &s.EntryID, &s.Algorithmic, &s.Community, &s.Judge,
		&s.Final, &s.FrozenAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *postgresScoreRepository) GetByEntry(ctx context.Context, exec SQLExecutor, contestID, entryID int) (*models.ScoreRecord, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + scoreColumns + ` FROM score_records WHERE contest_id = $1 AND entry_id = $2`

	s, err := scanScore(executor.QueryRowContext(ctx, query, contestID, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScoreRecordNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *postgresScoreRepository) ListByContest(ctx context.Context, exec SQLExecutor, contestID int) ([]models.ScoreRecord, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + scoreColumns + ` FROM score_records WHERE contest_id = $1 ORDER BY entry_id`

	rows, err := executor.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list score records: %w", err)
	}
	defer rows.Close()

	var records []models.ScoreRecord
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *s)
	}
	return records, rows.Err()
}
