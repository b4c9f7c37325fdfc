package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ranqly/contest-engine/anchor"
	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/repositories"
	"github.com/ranqly/contest-engine/storage"
)

const auditContentType = "application/json"

// AuditService собирает audit pack финализированного конкурса: полный
// детерминированный снимок (работы, журнал событий, раскрытые голоса с
// псевдонимами, бюллетени, оценки, рейтинг, переводы фаз), публикует его
// в объектное хранилище и асинхронно якорит content-hash во внешнем
// сервисе. Пакет валиден и доступен сразу после публикации, до якоря.
type AuditService struct {
	auditRepo   repositories.AuditRepository
	contestRepo repositories.ContestRepository
	entryRepo   repositories.EntryRepository
	voteRepo    repositories.VoteRepository
	ballotRepo  repositories.BallotRepository
	scoreRepo   repositories.ScoreRepository
	uploader    storage.FileUploader
	anchorer    anchor.Client
	logger      *slog.Logger
	now         func() time.Time
}

func NewAuditService(
	auditRepo repositories.AuditRepository,
	contestRepo repositories.ContestRepository,
	entryRepo repositories.EntryRepository,
	voteRepo repositories.VoteRepository,
	ballotRepo repositories.BallotRepository,
	scoreRepo repositories.ScoreRepository,
	uploader storage.FileUploader,
	anchorer anchor.Client,
	logger *slog.Logger,
) *AuditService {
	return &AuditService{
		auditRepo:   auditRepo,
		contestRepo: contestRepo,
		entryRepo:   entryRepo,
		voteRepo:    voteRepo,
		ballotRepo:  ballotRepo,
		scoreRepo:   scoreRepo,
		uploader:    uploader,
		anchorer:    anchorer,
		logger:      logger,
		now:         time.Now,
	}
}

// Build публикует audit pack. Пакет строится ровно один раз на конкурс:
// uniqueness по contest_id в БД отсекает гонку повторной сборки.
func (s *AuditService) Build(ctx context.Context, contestID int) (*models.AuditPack, error) {
	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	if contest.FinalizedAt == nil {
		return nil, fmt.Errorf("%w: contest is not finalized", ErrNotReady)
	}
	if _, err := s.auditRepo.GetByContest(ctx, contestID); err == nil {
		return nil, ErrAuditPackAlreadyBuilt
	} else if !errors.Is(err, repositories.ErrAuditPackNotFound) {
		return nil, err
	}

	bundle, err := s.assembleBundle(ctx, contest)
	if err != nil {
		return nil, err
	}

	payload, err := canonicalJSON(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize audit bundle: %w", err)
	}
	sum := sha256.Sum256(payload)
	contentHash := hex.EncodeToString(sum[:])

	key := fmt.Sprintf("audit-packs/%d/%s.json", contestID, contentHash)
	uploaded, err := s.uploader.Upload(ctx, key, auditContentType, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to publish audit pack: %w", err)
	}

	pack := &models.AuditPack{
		ID:           uuid.NewString(),
		ContestID:    contestID,
		ContentHash:  contentHash,
		ObjectKey:    uploaded.Key,
		PublicURL:    uploaded.Location,
		AnchorStatus: models.AnchorPending,
	}
	if err := s.auditRepo.Create(ctx, pack); err != nil {
		if errors.Is(err, repositories.ErrAuditPackConflict) {
			return nil, ErrAuditPackAlreadyBuilt
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "audit pack published",
		slog.Int("contest_id", contestID),
		slog.String("pack_id", pack.ID),
		slog.String("content_hash", contentHash),
		slog.String("object_key", uploaded.Key),
	)

	// Якорение — в фоне: сбой внешнего сервиса не должен задерживать
	// публикацию и не держит никаких блокировок конкурса.
	go s.anchorPack(context.WithoutCancel(ctx), pack)

	return pack, nil
}

// assembleBundle грузит секции пакета параллельно и сортирует их в
// канонический порядок.
func (s *AuditService) assembleBundle(ctx context.Context, contest *models.Contest) (*models.AuditBundle, error) {
	bundle := &models.AuditBundle{
		ContestID:   contest.ID,
		Title:       contest.Title,
		FinalizedAt: *contest.FinalizedAt,
	}

	var (
		revealed []models.VoteCommit
		ballots  []models.JudgeBallot
		scores   []models.ScoreRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Все работы, включая отозванные и дисквалифицированные: пакет
		// фиксирует полную историю, не только рейтинг.
		entries, err := s.entryRepo.ListByContest(gctx, nil, contest.ID, false)
		if err != nil {
			return err
		}
		bundle.Entries = entries
		return nil
	})
	g.Go(func() error {
		events, err := s.entryRepo.ListEvents(gctx, contest.ID)
		if err != nil {
			return err
		}
		bundle.Events = events
		return nil
	})
	g.Go(func() (err error) {
		revealed, err = s.voteRepo.ListRevealedByContest(gctx, nil, contest.ID)
		return err
	})
	g.Go(func() (err error) {
		ballots, err = s.ballotRepo.ListByContest(gctx, nil, contest.ID)
		return err
	})
	g.Go(func() (err error) {
		scores, err = s.scoreRepo.ListByContest(gctx, nil, contest.ID)
		return err
	})
	g.Go(func() error {
		overrides, err := s.contestRepo.ListOverrides(gctx, contest.ID)
		if err != nil {
			return err
		}
		bundle.Overrides = overrides
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to assemble audit bundle: %w", err)
	}

	bundle.Votes = make([]models.AuditVote, 0, len(revealed))
	for _, v := range revealed {
		av := models.AuditVote{
			EntryID:        v.EntryID,
			Voter:          models.VoterPseudonym(contest.ID, v.VoterID),
			Direction:      v.Direction,
			CommitmentHash: v.CommitmentHash,
		}
		if v.Justification != nil {
			av.Justification = *v.Justification
		}
		if v.RevealedAt != nil {
			av.RevealedAt = *v.RevealedAt
		}
		bundle.Votes = append(bundle.Votes, av)
	}

	bundle.Ballots = make([]models.AuditBallot, 0, len(ballots))
	for _, b := range ballots {
		bundle.Ballots = append(bundle.Ballots, models.AuditBallot{
			JudgeID:     b.JudgeID,
			Style:       b.Style,
			Items:       b.Items,
			Ranking:     b.Ranking,
			SubmittedAt: b.SubmittedAt,
		})
	}
	bundle.Scores = scores

	entryByID := make(map[int]models.Entry, len(bundle.Entries))
	for _, e := range bundle.Entries {
		entryByID[e.ID] = e
	}
	scoreByEntry := make(map[int]models.ScoreRecord, len(scores))
	for _, r := range scores {
		scoreByEntry[r.EntryID] = r
	}
	for _, e := range bundle.Entries {
		if e.FinalRank == nil {
			continue
		}
		rec := scoreByEntry[e.ID]
		item := models.RankingItem{
			Rank:        *e.FinalRank,
			EntryID:     e.ID,
			Title:       e.Title,
			AuthorID:    e.AuthorID,
			SubmittedAt: e.SubmittedAt,
		}
		if rec.Final != nil {
			item.Final = *rec.Final
		}
		if rec.Algorithmic != nil {
			item.Algorithmic = *rec.Algorithmic
		}
		if rec.Community != nil {
			item.Community = *rec.Community
		}
		if rec.Judge != nil {
			item.Judge = *rec.Judge
		}
		bundle.Ranking = append(bundle.Ranking, item)
	}

	sortBundle(bundle)
	return bundle, nil
}

// sortBundle приводит все секции к каноническому порядку, чтобы сборка
// была воспроизводимой байт-в-байт.
func sortBundle(b *models.AuditBundle) {
	sort.Slice(b.Entries, func(i, j int) bool { return b.Entries[i].ID < b.Entries[j].ID })
	sort.Slice(b.Events, func(i, j int) bool { return b.Events[i].ID < b.Events[j].ID })
	sort.Slice(b.Votes, func(i, j int) bool {
		if b.Votes[i].EntryID != b.Votes[j].EntryID {
			return b.Votes[i].EntryID < b.Votes[j].EntryID
		}
		return b.Votes[i].Voter < b.Votes[j].Voter
	})
	sort.Slice(b.Ballots, func(i, j int) bool { return b.Ballots[i].JudgeID < b.Ballots[j].JudgeID })
	sort.Slice(b.Scores, func(i, j int) bool { return b.Scores[i].EntryID < b.Scores[j].EntryID })
	sort.Slice(b.Ranking, func(i, j int) bool { return b.Ranking[i].Rank < b.Ranking[j].Rank })
	sort.Slice(b.Overrides, func(i, j int) bool { return b.Overrides[i].ID < b.Overrides[j].ID })
}

// canonicalJSON сериализует пакет без HTML-экранирования и лишних
// пробелов; порядок полей фиксирован структурами, порядок срезов —
// sortBundle.
func canonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (s *AuditService) anchorPack(ctx context.Context, pack *models.AuditPack) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 8), ctx)

	var receipt string
	err := backoff.Retry(func() error {
		var err error
		receipt, err = s.anchorer.Anchor(ctx, pack.ContestID, pack.ContentHash)
		return err
	}, policy)

	now := s.now()
	if err != nil {
		s.logger.ErrorContext(ctx, "audit pack anchoring failed",
			slog.String("pack_id", pack.ID),
			slog.Any("error", err),
		)
		if uerr := s.auditRepo.UpdateAnchorStatus(ctx, pack.ID, models.AnchorFailed, nil, nil); uerr != nil {
			s.logger.ErrorContext(ctx, "failed to record anchor failure",
				slog.String("pack_id", pack.ID), slog.Any("error", uerr))
		}
		return
	}

	if err := s.auditRepo.UpdateAnchorStatus(ctx, pack.ID, models.AnchorConfirmed, &receipt, &now); err != nil {
		s.logger.ErrorContext(ctx, "failed to record anchor receipt",
			slog.String("pack_id", pack.ID), slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "audit pack anchored",
		slog.String("pack_id", pack.ID),
		slog.String("receipt", receipt),
	)
}

// GetByContest возвращает метаданные опубликованного пакета.
func (s *AuditService) GetByContest(ctx context.Context, contestID int) (*models.AuditPack, error) {
	pack, err := s.auditRepo.GetByContest(ctx, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrAuditPackNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return pack, nil
}
