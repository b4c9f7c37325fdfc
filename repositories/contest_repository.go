package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/ranqly/contest-engine/models"
)

var (
	ErrContestNotFound         = errors.New("contest not found")
	ErrContestTitleConflict    = errors.New("contest title conflict for this organizer")
	ErrContestInvalidOrganizer = errors.New("invalid organizer reference")
	ErrContestAlreadyFinalized = errors.New("contest is already finalized")
)

type ListContestsFilter struct {
	Category    *models.ContestCategory
	OrganizerID *int
	Limit       int
	Offset      int
}

type ContestRepository interface {
	Create(ctx context.Context, contest *models.Contest) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contest, error)
	List(ctx context.Context, filter ListContestsFilter) ([]models.Contest, error)
	ListUnfinished(ctx context.Context) ([]models.Contest, error)
	UpdateSchedule(ctx context.Context, exec SQLExecutor, id int, start time.Time, schedule models.PhaseSchedule) error
	UpdateLastObservedPhase(ctx context.Context, exec SQLExecutor, id int, phase models.ContestPhase) error
	// MarkFinalized помечает конкурс финализированным ровно один раз:
	// повторный вызов возвращает ErrContestAlreadyFinalized (compare-and-swap
	// по finalized_at IS NULL).
	MarkFinalized(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	LogOverride(ctx context.Context, exec SQLExecutor, override *models.PhaseOverride) error
	ListOverrides(ctx context.Context, contestID int) ([]models.PhaseOverride, error)
}

type postgresContestRepository struct {
	db *sql.DB
}

func NewPostgresContestRepository(db *sql.DB) ContestRepository {
	return &postgresContestRepository{db: db}
}

func (r *postgresContestRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const contestColumns = `
	id, title, description, category, organizer_id, prize_amount, currency,
	winners_count, max_submissions, ballot_style, start_date,
	submission_secs, scoring_secs, disputes_secs, voting_secs, judging_secs, finalization_secs,
	finalized_at, last_observed_phase, created_at`

func (r *postgresContestRepository) Create(ctx context.Context, c *models.Contest) error {
	query := `
		INSERT INTO contests (
			title, description, category, organizer_id, prize_amount, currency,
			winners_count, max_submissions, ballot_style, start_date,
			submission_secs, scoring_secs, disputes_secs, voting_secs, judging_secs, finalization_secs,
			last_observed_phase
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	s := c.Schedule
	err := r.db.QueryRowContext(ctx, query,
		c.Title, c.Description, c.Category, c.OrganizerID, c.PrizeAmount, c.Currency,
		c.WinnersCount, c.MaxSubmissions, c.BallotStyle, c.StartDate,
		int(s.Submission.Seconds()), int(s.Scoring.Seconds()), int(s.Disputes.Seconds()),
		int(s.Voting.Seconds()), int(s.Judging.Seconds()), int(s.Finalization.Seconds()),
		models.PhaseSubmission,
	).Scan(&c.ID, &c.CreatedAt)

	return r.handleContestError(err)
}

func scanContest(row interface{ Scan(dest ...interface{}) error }) (*models.Contest, error) {
	c := &models.Contest{}
	var subSecs, scoSecs, disSecs, votSecs, judSecs, finSecs int64
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Category, &c.OrganizerID, &c.PrizeAmount, &c.Currency,
		&c.WinnersCount, &c.MaxSubmissions, &c.BallotStyle, &c.StartDate,
		&subSecs, &scoSecs, &disSecs, &votSecs, &judSecs, &finSecs,
		&c.FinalizedAt, &c.LastObservedPhase, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Schedule = models.PhaseSchedule{
		Submission:   time.Duration(subSecs) * time.Second,
		Scoring:      time.Duration(scoSecs) * time.Second,
		Disputes:     time.Duration(disSecs) * time.Second,
		Voting:       time.Duration(votSecs) * time.Second,
		Judging:      time.Duration(judSecs) * time.Second,
		Finalization: time.Duration(finSecs) * time.Second,
	}
	return c, nil
}

func (r *postgresContestRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contest, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + contestColumns + ` FROM contests WHERE id = $1`

	c, err := scanContest(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *postgresContestRepository) List(ctx context.Context, filter ListContestsFilter) ([]models.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if filter.Category != nil {
		query += fmt.Sprintf(" AND category = $%d", argID)
		args = append(args, *filter.Category)
		argID++
	}
	if filter.OrganizerID != nil {
		query += fmt.Sprintf(" AND organizer_id = $%d", argID)
		args = append(args, *filter.OrganizerID)
		argID++
	}
	query += " ORDER BY start_date DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contests: %w", err)
	}
	defer rows.Close()

	var contests []models.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest row: %w", err)
		}
		contests = append(contests, *c)
	}
	return contests, rows.Err()
}

func (r *postgresContestRepository) ListUnfinished(ctx context.Context) ([]models.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE last_observed_phase <> $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, models.PhaseCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished contests: %w", err)
	}
	defer rows.Close()

	var contests []models.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, *c)
	}
	return contests, rows.Err()
}

func (r *postgresContestRepository) UpdateSchedule(ctx context.Context, exec SQLExecutor, id int, start time.Time, schedule models.PhaseSchedule) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE contests SET
			start_date = $2,
			submission_secs = $3, scoring_secs = $4, disputes_secs = $5,
			voting_secs = $6, judging_secs = $7, finalization_secs = $8
		WHERE id = $1`

	result, err := executor.ExecContext(ctx, query, id, start,
		int(schedule.Submission.Seconds()), int(schedule.Scoring.Seconds()), int(schedule.Disputes.Seconds()),
		int(schedule.Voting.Seconds()), int(schedule.Judging.Seconds()), int(schedule.Finalization.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to update contest schedule: %w", err)
	}
	return checkAffectedRows(result, ErrContestNotFound)
}

func (r *postgresContestRepository) UpdateLastObservedPhase(ctx context.Context, exec SQLExecutor, id int, phase models.ContestPhase) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE contests SET last_observed_phase = $2 WHERE id = $1`, id, phase)
	if err != nil {
		return fmt.Errorf("failed to update last observed phase: %w", err)
	}
	return checkAffectedRows(result, ErrContestNotFound)
}

func (r *postgresContestRepository) MarkFinalized(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE contests SET finalized_at = $2 WHERE id = $1 AND finalized_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark contest finalized: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		// Либо конкурса нет, либо CAS по finalized_at не прошёл.
		if _, getErr := r.GetByID(ctx, executor, id); getErr != nil {
			return getErr
		}
		return ErrContestAlreadyFinalized
	}
	return nil
}

func (r *postgresContestRepository) LogOverride(ctx context.Context, exec SQLExecutor, o *models.PhaseOverride) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO phase_overrides (contest_id, actor_id, from_phase, to_phase, extended_secs, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return executor.QueryRowContext(ctx, query,
		o.ContestID, o.ActorID, o.FromPhase, o.ToPhase, int(o.ExtendedBy.Seconds()), o.Reason,
	).Scan(&o.ID, &o.CreatedAt)
}

func (r *postgresContestRepository) ListOverrides(ctx context.Context, contestID int) ([]models.PhaseOverride, error) {
	query := `
		SELECT id, contest_id, actor_id, from_phase, to_phase, extended_secs, reason, created_at
		FROM phase_overrides WHERE contest_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phase overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.PhaseOverride
	for rows.Next() {
		var o models.PhaseOverride
		var extendedSecs int64
		if err := rows.Scan(&o.ID, &o.ContestID, &o.ActorID, &o.FromPhase, &o.ToPhase, &extendedSecs, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.ExtendedBy = time.Duration(extendedSecs) * time.Second
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (r *postgresContestRepository) handleContestError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return ErrContestTitleConflict
		case "foreign_key_violation":
			return ErrContestInvalidOrganizer
		}
	}
	return err
}
