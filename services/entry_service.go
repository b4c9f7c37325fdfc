package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/phase"
	"github.com/ranqly/contest-engine/repositories"
)

// Ограничения на поля работы.
const (
	entryTitleMaxLen       = 200
	entryDescriptionMinLen = 20
	entryDescriptionMaxLen = 5000
)

type SubmitEntryInput struct {
	Title       string `json:"title"`
	WorkURL     string `json:"work_url"`
	Description string `json:"description"`
}

type EditEntryInput struct {
	Title       *string `json:"title"`
	WorkURL     *string `json:"work_url"`
	Description *string `json:"description"`
}

// EntryService — реестр работ: приём, правка и отзыв в фазе submission,
// дисквалификация в фазе disputes. Каждая успешная мутация дописывает
// неизменяемое событие в журнал (вход для audit pack).
type EntryService struct {
	tx          repositories.TxRunner
	entryRepo   repositories.EntryRepository
	contestRepo repositories.ContestRepository
	userRepo    repositories.UserRepository
	locks       *ContestLocks
	hub         Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewEntryService(
	tx repositories.TxRunner,
	entryRepo repositories.EntryRepository,
	contestRepo repositories.ContestRepository,
	userRepo repositories.UserRepository,
	locks *ContestLocks,
	hub Broadcaster,
	logger *slog.Logger,
) *EntryService {
	return &EntryService{
		tx:          tx,
		entryRepo:   entryRepo,
		contestRepo: contestRepo,
		userRepo:    userRepo,
		locks:       locks,
		hub:         hub,
		logger:      logger,
		now:         time.Now,
	}
}

func validateEntryContent(title, workURL, description string) error {
	if title == "" || len(title) > entryTitleMaxLen {
		return fmt.Errorf("%w: title must be 1..%d characters", ErrValidationFailed, entryTitleMaxLen)
	}
	u, err := url.ParseRequestURI(workURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: work_url must be a valid http(s) URL", ErrValidationFailed)
	}
	if len(description) < entryDescriptionMinLen || len(description) > entryDescriptionMaxLen {
		return fmt.Errorf("%w: description must be %d..%d characters", ErrValidationFailed, entryDescriptionMinLen, entryDescriptionMaxLen)
	}
	return nil
}

// Submit принимает работу в конкурс. Проверка квоты выполняется внутри
// транзакции под блокировкой конкурса, так что гонка параллельных подач
// не может превысить max_submissions.
func (s *EntryService) Submit(ctx context.Context, contestID, authorID int, input SubmitEntryInput) (*models.Entry, error) {
	if err := validateEntryContent(input.Title, input.WorkURL, input.Description); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(contestID)
	defer unlock()

	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	now := s.now()
	if phase.Current(contest, now) != models.PhaseSubmission || now.Before(contest.StartDate) {
		return nil, fmt.Errorf("%w: submissions are closed", ErrPhaseClosed)
	}

	entry := &models.Entry{
		ContestID:   contestID,
		AuthorID:    authorID,
		Title:       input.Title,
		WorkURL:     input.WorkURL,
		Description: input.Description,
		Status:      models.EntryStatusPending,
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if contest.MaxSubmissions > 0 {
			count, err := s.entryRepo.CountLive(ctx, exec, contestID)
			if err != nil {
				return err
			}
			if count >= contest.MaxSubmissions {
				return ErrQuotaExceeded
			}
		}
		if err := s.entryRepo.Create(ctx, exec, entry); err != nil {
			return err
		}
		return s.entryRepo.AppendEvent(ctx, exec, &models.EntryEvent{
			ContestID: contestID,
			EntryID:   entry.ID,
			ActorID:   authorID,
			Action:    models.EntryEventSubmitted,
		})
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToContest(contestID, MsgEntrySubmitted, map[string]interface{}{
		"entry_id": entry.ID,
		"title":    entry.Title,
	})
	return entry, nil
}

// Edit правит работу. Разрешено только автору и только в фазе submission.
func (s *EntryService) Edit(ctx context.Context, entryID, authorID int, input EditEntryInput) (*models.Entry, error) {
	entry, err := s.entryRepo.GetByID(ctx, nil, entryID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	unlock := s.locks.Lock(entry.ContestID)
	defer unlock()

	if entry.AuthorID != authorID {
		return nil, ErrForbidden
	}
	if entry.Status == models.EntryStatusWithdrawn {
		return nil, ErrAlreadyWithdrawn
	}

	contest, err := s.contestRepo.GetByID(ctx, nil, entry.ContestID)
	if err != nil {
		return nil, err
	}
	if phase.Current(contest, s.now()) != models.PhaseSubmission {
		return nil, fmt.Errorf("%w: entries are editable only during submission", ErrPhaseClosed)
	}

	if input.Title != nil {
		entry.Title = *input.Title
	}
	if input.WorkURL != nil {
		entry.WorkURL = *input.WorkURL
	}
	if input.Description != nil {
		entry.Description = *input.Description
	}
	if err := validateEntryContent(entry.Title, entry.WorkURL, entry.Description); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.entryRepo.UpdateContent(ctx, exec, entry); err != nil {
			return err
		}
		return s.entryRepo.AppendEvent(ctx, exec, &models.EntryEvent{
			ContestID: entry.ContestID,
			EntryID:   entry.ID,
			ActorID:   authorID,
			Action:    models.EntryEventEdited,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Withdraw отзывает работу. Отзыв терминален и необратим.
func (s *EntryService) Withdraw(ctx context.Context, entryID, authorID int) error {
	entry, err := s.entryRepo.GetByID(ctx, nil, entryID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			return ErrEntryNotFound
		}
		return err
	}

	unlock := s.locks.Lock(entry.ContestID)
	defer unlock()

	if entry.AuthorID != authorID {
		return ErrForbidden
	}
	if entry.Status == models.EntryStatusWithdrawn {
		return ErrAlreadyWithdrawn
	}

	contest, err := s.contestRepo.GetByID(ctx, nil, entry.ContestID)
	if err != nil {
		return err
	}
	if phase.Current(contest, s.now()) != models.PhaseSubmission {
		return fmt.Errorf("%w: entries can be withdrawn only during submission", ErrPhaseClosed)
	}

	return s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.entryRepo.UpdateStatus(ctx, exec, entryID, models.EntryStatusWithdrawn, nil); err != nil {
			return err
		}
		return s.entryRepo.AppendEvent(ctx, exec, &models.EntryEvent{
			ContestID: entry.ContestID,
			EntryID:   entryID,
			ActorID:   authorID,
			Action:    models.EntryEventWithdrawn,
		})
	})
}

// Disqualify — административная операция процесса разбора жалоб:
// допускается в фазе disputes и позднее, до финализации. Работа остаётся
// в хранилище и попадает в audit pack с флагом и причиной.
func (s *EntryService) Disqualify(ctx context.Context, entryID, actorID int, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: disqualification reason is required", ErrValidationFailed)
	}

	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	entry, err := s.entryRepo.GetByID(ctx, nil, entryID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			return ErrEntryNotFound
		}
		return err
	}

	unlock := s.locks.Lock(entry.ContestID)
	defer unlock()

	contest, err := s.contestRepo.GetByID(ctx, nil, entry.ContestID)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && contest.OrganizerID != actorID {
		return ErrForbidden
	}
	current := phase.Current(contest, s.now())
	if phase.Index(current) < phase.Index(models.PhaseDisputes) || current == models.PhaseCompleted || contest.FinalizedAt != nil {
		return fmt.Errorf("%w: disqualification allowed between disputes and finalization", ErrPhaseClosed)
	}
	if entry.Status == models.EntryStatusDisqualified {
		return nil // идемпотентно
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.entryRepo.UpdateStatus(ctx, exec, entryID, models.EntryStatusDisqualified, &reason); err != nil {
			return err
		}
		return s.entryRepo.AppendEvent(ctx, exec, &models.EntryEvent{
			ContestID: entry.ContestID,
			EntryID:   entryID,
			ActorID:   actorID,
			Action:    models.EntryEventDisqualified,
			Detail:    &reason,
		})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "entry disqualified",
		slog.Int("contest_id", entry.ContestID),
		slog.Int("entry_id", entryID),
		slog.Int("actor_id", actorID),
		slog.String("reason", reason),
	)
	return nil
}

// ListByContest возвращает работы конкурса; onlyLive отсекает отозванные
// и дисквалифицированные (вход для голосования и судейства).
func (s *EntryService) ListByContest(ctx context.Context, contestID int, onlyLive bool) ([]models.Entry, error) {
	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID, onlyLive)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return entries, nil
}

// ListByAuthor — работы автора по всем конкурсам ("мои работы").
func (s *EntryService) ListByAuthor(ctx context.Context, authorID int) ([]models.Entry, error) {
	entries, err := s.entryRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return entries, nil
}
