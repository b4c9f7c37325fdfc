package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/ranqly/contest-engine/models"
)

var (
	ErrBallotNotFound       = errors.New("judge ballot not found")
	ErrJudgeAlreadyAssigned = errors.New("judge is already assigned to this contest")
	ErrJudgeNotAssigned     = errors.New("judge is not assigned to this contest")
)

type BallotRepository interface {
	AssignJudge(ctx context.Context, cj *models.ContestJudge) error
	IsJudgeAssigned(ctx context.Context, exec SQLExecutor, contestID, judgeID int) (bool, error)
	CountJudges(ctx context.Context, exec SQLExecutor, contestID int) (int, error)
	// Upsert заменяет бюллетень судьи целиком: строка бюллетеня и все его
	// позиции перезаписываются атомарно (вызывается внутри транзакции).
	Upsert(ctx context.Context, exec SQLExecutor, ballot *models.JudgeBallot) error
	ListByContest(ctx context.Context, exec SQLExecutor, contestID int) ([]models.JudgeBallot, error)
}

type postgresBallotRepository struct {
	db *sql.DB
}

func NewPostgresBallotRepository(db *sql.DB) BallotRepository {
	return &postgresBallotRepository{db: db}
}

func (r *postgresBallotRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresBallotRepository) AssignJudge(ctx context.Context, cj *models.ContestJudge) error {
	query := `
		INSERT INTO contest_judges (contest_id, judge_id)
		VALUES ($1, $2)
		RETURNING id, assigned_at`

	err := r.db.QueryRowContext(ctx, query, cj.ContestID, cj.JudgeID).Scan(&cj.ID, &cj.AssignedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrJudgeAlreadyAssigned
		}
		return fmt.Errorf("failed to assign judge: %w", err)
	}
	return nil
}

func (r *postgresBallotRepository) IsJudgeAssigned(ctx context.Context, exec SQLExecutor, contestID, judgeID int) (bool, error) {
	executor := r.getExecutor(exec)
	var exists bool
	err := executor.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM contest_judges WHERE contest_id = $1 AND judge_id = $2)`,
		contestID, judgeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check judge assignment: %w", err)
	}
	return exists, nil
}

func (r *postgresBallotRepository) CountJudges(ctx context.Context, exec SQLExecutor, contestID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contest_judges WHERE contest_id = $1`, contestID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count contest judges: %w", err)
	}
	return count, nil
}

func (r *postgresBallotRepository) Upsert(ctx context.Context, exec SQLExecutor, b *models.JudgeBallot) error {
	executor := r.getExecutor(exec)

	query := `
		INSERT INTO judge_ballots (contest_id, judge_id, style)
		VALUES ($1, $2, $3)
		ON CONFLICT (contest_id, judge_id) DO UPDATE SET
			style = EXCLUDED.style,
			updated_at = NOW()
		RETURNING id, submitted_at, updated_at`

	err := executor.QueryRowContext(ctx, query, b.ContestID, b.JudgeID, b.Style).
		Scan(&b.ID, &b.SubmittedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert judge ballot: %w", err)
	}

	if _, err := executor.ExecContext(ctx, `DELETE FROM ballot_items WHERE ballot_id = $1`, b.ID); err != nil {
		return fmt.Errorf("failed to clear ballot items: %w", err)
	}

	switch b.Style {
	case models.BallotNumeric:
		for _, item := range b.Items {
			_, err := executor.ExecContext(ctx, `
				INSERT INTO ballot_items (ballot_id, entry_id, position, quality, originality, clarity, depth, rationale)
				VALUES ($1, $2, NULL, $3, $4, $5, $6, $7)`,
				b.ID, item.EntryID,
				item.Scores.Quality, item.Scores.Originality, item.Scores.Clarity, item.Scores.Depth,
				item.Rationale,
			)
			if err != nil {
				return fmt.Errorf("failed to insert ballot item for entry %d: %w", item.EntryID, err)
			}
		}
	case models.BallotRanking:
		for pos, entryID := range b.Ranking {
			_, err := executor.ExecContext(ctx, `
				INSERT INTO ballot_items (ballot_id, entry_id, position, rationale)
				VALUES ($1, $2, $3, '')`,
				b.ID, entryID, pos+1,
			)
			if err != nil {
				return fmt.Errorf("failed to insert ranking item for entry %d: %w", entryID, err)
			}
		}
	}
	return nil
}

func (r *postgresBallotRepository) ListByContest(ctx context.Context, exec SQLExecutor, contestID int) ([]models.JudgeBallot, error) {
	executor := r.getExecutor(exec)

	rows, err := executor.QueryContext(ctx, `
		SELECT id, contest_id, judge_id, style, submitted_at, updated_at
		FROM judge_ballots WHERE contest_id = $1 ORDER BY judge_id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list judge ballots: %w", err)
	}
	defer rows.Close()

	var ballots []models.JudgeBallot
	byID := map[int]*models.JudgeBallot{}
	for rows.Next() {
		var b models.JudgeBallot
		if err := rows.Scan(&b.ID, &b.ContestID, &b.JudgeID, &b.Style, &b.SubmittedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		ballots = append(ballots, b)
		byID[b.ID] = &ballots[len(ballots)-1]
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ballots) == 0 {
		return ballots, nil
	}

	itemRows, err := executor.QueryContext(ctx, `
		SELECT bi.ballot_id, bi.entry_id, bi.position, bi.quality, bi.originality, bi.clarity, bi.depth, bi.rationale
		FROM ballot_items bi
		JOIN judge_ballots jb ON jb.id = bi.ballot_id
		WHERE jb.contest_id = $1
		ORDER BY bi.ballot_id, COALESCE(bi.position, 0), bi.entry_id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ballot items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var ballotID, entryID int
		var position *int
		var quality, originality, clarity, depth *float64
		var rationale string
		if err := itemRows.Scan(&ballotID, &entryID, &position, &quality, &originality, &clarity, &depth, &rationale); err != nil {
			return nil, err
		}
		b, ok := byID[ballotID]
		if !ok {
			continue
		}
		if b.Style == models.BallotRanking {
			b.Ranking = append(b.Ranking, entryID)
			continue
		}
		item := models.BallotItem{EntryID: entryID, Rationale: rationale}
		if quality != nil {
			item.Scores = &models.SubScores{
				Quality:     *quality,
				Originality: *originality,
				Clarity:     *clarity,
				Depth:       *depth,
			}
		}
		b.Items = append(b.Items, item)
	}
	return ballots, itemRows.Err()
}
