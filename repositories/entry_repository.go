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
	ErrEntryNotFound       = errors.New("entry not found")
	ErrEntryInvalidContest = errors.New("invalid contest reference for entry")
	ErrEntryInvalidAuthor  = errors.New("invalid author reference for entry")
)

type EntryRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.Entry) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Entry, error)
	ListByContest(ctx context.Context, exec SQLExecutor, contestID int, onlyLive bool) ([]models.Entry, error)
	ListByAuthor(ctx context.Context, authorID int) ([]models.Entry, error)
	// CountLive считает незавершённые работы конкурса; вызывается внутри
	// транзакции подачи для атомарной проверки квоты.
	CountLive(ctx context.Context, exec SQLExecutor, contestID int) (int, error)
	UpdateContent(ctx context.Context, exec SQLExecutor, entry *models.Entry) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.EntryStatus, reason *string) error
	UpdateFinalRank(ctx context.Context, exec SQLExecutor, id int, rank *int) error
	AppendEvent(ctx context.Context, exec SQLExecutor, event *models.EntryEvent) error
	ListEvents(ctx context.Context, contestID int) ([]models.EntryEvent, error)
}

type postgresEntryRepository struct {
	db *sql.DB
}

func NewPostgresEntryRepository(db *sql.DB) EntryRepository {
	return &postgresEntryRepository{db: db}
}

func (r *postgresEntryRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const entryColumns = `
	id, contest_id, author_id, title, work_url, description, status,
	disqualify_reason, submitted_at, updated_at, final_rank`

func (r *postgresEntryRepository) Create(ctx context.Context, exec SQLExecutor, e *models.Entry) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO entries (contest_id, author_id, title, work_url, description, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, submitted_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		e.ContestID, e.AuthorID, e.Title, e.WorkURL, e.Description, e.Status,
	).Scan(&e.ID, &e.SubmittedAt, &e.UpdatedAt)

	return r.handleEntryError(err)
}

func scanEntry(row interface{ Scan(dest ...interface{}) error }) (*models.Entry, error) {
	e := &models.Entry{}
	err := row.Scan(
		&e.ID, &e.ContestID, &e.AuthorID, &e.Title, &e.WorkURL, &e.Description, &e.Status,
		&e.DisqualifyReason, &e.SubmittedAt, &e.UpdatedAt, &e.FinalRank,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *postgresEntryRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Entry, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1`

	e, err := scanEntry(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *postgresEntryRepository) ListByContest(ctx context.Context, exec SQLExecutor, contestID int, onlyLive bool) ([]models.Entry, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + entryColumns + ` FROM entries WHERE contest_id = $1`
	if onlyLive {
		query += ` AND status = 'pending'`
	}
	query += ` ORDER BY id`

	rows, err := executor.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for contest %d: %w", contestID, err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *postgresEntryRepository) ListByAuthor(ctx context.Context, authorID int) ([]models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE author_id = $1 ORDER BY submitted_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for author %d: %w", authorID, err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *postgresEntryRepository) CountLive(ctx context.Context, exec SQLExecutor, contestID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE contest_id = $1 AND status = 'pending'`, contestID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count live entries: %w", err)
	}
	return count, nil
}

func (r *postgresEntryRepository) UpdateContent(ctx context.Context, exec SQLExecutor, e *models.Entry) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE entries SET title = $2, work_url = $3, description = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := executor.ExecContext(ctx, query, e.ID, e.Title, e.WorkURL, e.Description)
	if err != nil {
		return fmt.Errorf("failed to update entry content: %w", err)
	}
	return checkAffectedRows(result, ErrEntryNotFound)
}

func (r *postgresEntryRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.EntryStatus, reason *string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE entries SET status = $2, disqualify_reason = $3, updated_at = NOW() WHERE id = $1`,
		id, status, reason)
	if err != nil {
		return fmt.Errorf("failed to update entry status: %w", err)
	}
	return checkAffectedRows(result, ErrEntryNotFound)
}

func (r *postgresEntryRepository) UpdateFinalRank(ctx context.Context, exec SQLExecutor, id int, rank *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE entries SET final_rank = $2 WHERE id = $1`, id, rank)
	if err != nil {
		return fmt.Errorf("failed to update entry final rank: %w", err)
	}
	return checkAffectedRows(result, ErrEntryNotFound)
}

func (r *postgresEntryRepository) AppendEvent(ctx context.Context, exec SQLExecutor, ev *models.EntryEvent) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO entry_events (contest_id, entry_id, actor_id, action, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return executor.QueryRowContext(ctx, query,
		ev.ContestID, ev.EntryID, ev.ActorID, ev.Action, ev.Detail,
	).Scan(&ev.ID, &ev.CreatedAt)
}

func (r *postgresEntryRepository) ListEvents(ctx context.Context, contestID int) ([]models.EntryEvent, error) {
	query := `
		SELECT id, contest_id, entry_id, actor_id, action, detail, created_at
		FROM entry_events WHERE contest_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry events: %w", err)
	}
	defer rows.Close()

	var events []models.EntryEvent
	for rows.Next() {
		var ev models.EntryEvent
		if err := rows.Scan(&ev.ID, &ev.ContestID, &ev.EntryID, &ev.ActorID, &ev.Action, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *postgresEntryRepository) handleEntryError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		switch pqErr.Constraint {
		case "entries_contest_id_fkey":
			return ErrEntryInvalidContest
		case "entries_author_id_fkey":
			return ErrEntryInvalidAuthor
		}
	}
	return err
}
