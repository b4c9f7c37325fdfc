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
	ErrCredentialNotFound = errors.New("voter credential not found")
	ErrCredentialConflict = errors.New("voter credential already minted for this contest")
	ErrVoteCommitNotFound = errors.New("vote commitment not found")
)

type VoteRepository interface {
	MintCredential(ctx context.Context, cred *models.VoterCredential) error
	GetCredential(ctx context.Context, exec SQLExecutor, contestID, voterID int) (*models.VoterCredential, error)
	// LockCredential читает кредешнл с FOR UPDATE: строка кредешнла служит
	// якорем сериализации для проверки бюджета одного голосующего.
	LockCredential(ctx context.Context, exec SQLExecutor, contestID, voterID int) (*models.VoterCredential, error)
	CountCommitsByDirection(ctx context.Context, exec SQLExecutor, contestID, voterID int, direction models.VoteDirection) (int, error)
	GetCommit(ctx context.Context, exec SQLExecutor, contestID, entryID, voterID int) (*models.VoteCommit, error)
	// UpsertCommit вставляет коммит или заменяет существующий для той же
	// пары (голосующий, работа): против бюджета считается только последний.
	UpsertCommit(ctx context.Context, exec SQLExecutor, commit *models.VoteCommit) error
	MarkRevealed(ctx context.Context, exec SQLExecutor, commitID int, justification string, at time.Time) error
	ListRevealedByContest(ctx context.Context, exec SQLExecutor, contestID int) ([]models.VoteCommit, error)
}

type postgresVoteRepository struct {
	db *sql.DB
}

func NewPostgresVoteRepository(db *sql.DB) VoteRepository {
	return &postgresVoteRepository{db: db}
}

func (r *postgresVoteRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresVoteRepository) MintCredential(ctx context.Context, cred *models.VoterCredential) error {
	query := `
		INSERT INTO voter_credentials (contest_id, voter_id)
		VALUES ($1, $2)
		RETURNING id, minted_at`

	err := r.db.QueryRowContext(ctx, query, cred.ContestID, cred.VoterID).Scan(&cred.ID, &cred.MintedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrCredentialConflict
		}
		return fmt.Errorf("failed to mint voter credential: %w", err)
	}
	return nil
}

func scanCredential(row *sql.Row) (*models.VoterCredential, error) {
	cred := &models.VoterCredential{}
	err := row.Scan(&cred.ID, &cred.ContestID, &cred.VoterID, &cred.MintedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return cred, nil
}

func (r *postgresVoteRepository) GetCredential(ctx context.Context, exec SQLExecutor, contestID, voterID int) (*models.VoterCredential, error) {
	executor := r.getExecutor(exec)
	return scanCredential(executor.QueryRowContext(ctx,
		`SELECT id, contest_id, voter_id, minted_at FROM voter_credentials WHERE contest_id = $1 AND voter_id = $2`,
		contestID, voterID))
}

func (r *postgresVoteRepository) LockCredential(ctx context.Context, exec SQLExecutor, contestID, voterID int) (*models.VoterCredential, error) {
	executor := r.getExecutor(exec)
	return scanCredential(executor.QueryRowContext(ctx,
		`SELECT id, contest_id, voter_id, minted_at FROM voter_credentials WHERE contest_id = $1 AND voter_id = $2 FOR UPDATE`,
		contestID, voterID))
}

func (r *postgresVoteRepository) CountCommitsByDirection(ctx context.Context, exec SQLExecutor, contestID, voterID int, direction models.VoteDirection) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vote_commits WHERE contest_id = $1 AND voter_id = $2 AND direction = $3`,
		contestID, voterID, direction,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vote commits: %w", err)
	}
	return count, nil
}

func scanCommit(row interface{ Scan(dest ...interface{}) error }) (*models.VoteCommit, error) {
	c := &models.VoteCommit{}
	err := row.Scan(
		&c.ID, &c.ContestID, &c.EntryID, &c.VoterID, &c.Direction,
		&c.CommitmentHash, &c.CommittedAt, &c.Revealed, &c.Justification, &c.RevealedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

const voteCommitColumns = `
	id, contest_id, entry_id, voter_id, direction,
	commitment_hash, committed_at, revealed, justification, revealed_at`

func (r *postgresVoteRepository) GetCommit(ctx context.Context, exec SQLExecutor, contestID, entryID, voterID int) (*models.VoteCommit, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + voteCommitColumns + ` FROM vote_commits WHERE contest_id = $1 AND entry_id = $2 AND voter_id = $3`

	c, err := scanCommit(executor.QueryRowContext(ctx, query, contestID, entryID, voterID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVoteCommitNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *postgresVoteRepository) UpsertCommit(ctx context.Context, exec SQLExecutor, c *models.VoteCommit) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO vote_commits (contest_id, entry_id, voter_id, direction, commitment_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (contest_id, entry_id, voter_id) DO UPDATE SET
			direction = EXCLUDED.direction,
			commitment_hash = EXCLUDED.commitment_hash,
			committed_at = NOW(),
			revealed = FALSE,
			justification = NULL,
			revealed_at = NULL
		RETURNING id, committed_at`

	err := executor.QueryRowContext(ctx, query,
		c.ContestID, c.EntryID, c.VoterID, c.Direction, c.CommitmentHash,
	).Scan(&c.ID, &c.CommittedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert vote commit: %w", err)
	}
	return nil
}

func (r *postgresVoteRepository) MarkRevealed(ctx context.Context, exec SQLExecutor, commitID int, justification string, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE vote_commits SET revealed = TRUE, justification = $2, revealed_at = $3 WHERE id = $1`,
		commitID, justification, at)
	if err != nil {
		return fmt.Errorf("failed to mark vote revealed: %w", err)
	}
	return checkAffectedRows(result, ErrVoteCommitNotFound)
}

func (r *postgresVoteRepository) ListRevealedByContest(ctx context.Context, exec SQLExecutor, contestID int) ([]models.VoteCommit, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + voteCommitColumns + ` FROM vote_commits WHERE contest_id = $1 AND revealed = TRUE ORDER BY entry_id, id`

	rows, err := executor.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revealed votes: %w", err)
	}
	defer rows.Close()

	var commits []models.VoteCommit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, *c)
	}
	return commits, rows.Err()
}
