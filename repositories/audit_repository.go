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
	ErrAuditPackNotFound = errors.New("audit pack not found")
	ErrAuditPackConflict = errors.New("audit pack already built for this contest")
)

type AuditRepository interface {
	Create(ctx context.Context, pack *models.AuditPack) error
	GetByContest(ctx context.Context, contestID int) (*models.AuditPack, error)
	UpdateAnchorStatus(ctx context.Context, packID string, status models.AnchorStatus, receipt *string, anchoredAt *time.Time) error
}

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) Create(ctx context.Context, p *models.AuditPack) error {
	query := `
		INSERT INTO audit_packs (id, contest_id, content_hash, object_key, public_url, anchor_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.ContestID, p.ContentHash, p.ObjectKey, p.PublicURL, p.AnchorStatus,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrAuditPackConflict
		}
		return fmt.Errorf("failed to create audit pack record: %w", err)
	}
	return nil
}

func (r *postgresAuditRepository) GetByContest(ctx context.Context, contestID int) (*models.AuditPack, error) {
	query := `
		SELECT id, contest_id, content_hash, object_key, public_url, anchor_status, anchor_receipt, created_at, anchored_at
		FROM audit_packs WHERE contest_id = $1`

	p := &models.AuditPack{}
	err := r.db.QueryRowContext(ctx, query, contestID).Scan(
		&p.ID, &p.ContestID, &p.ContentHash, &p.ObjectKey, &p.PublicURL,
		&p.AnchorStatus, &p.AnchorReceipt, &p.CreatedAt, &p.AnchoredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuditPackNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresAuditRepository) UpdateAnchorStatus(ctx context.Context, packID string, status models.AnchorStatus, receipt *string, anchoredAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE audit_packs SET anchor_status = $2, anchor_receipt = $3, anchored_at = $4 WHERE id = $1`,
		packID, status, receipt, anchoredAt)
	if err != nil {
		return fmt.Errorf("failed to update anchor status: %w", err)
	}
	return checkAffectedRows(result, ErrAuditPackNotFound)
}
