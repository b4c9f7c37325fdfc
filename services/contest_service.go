package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/phase"
	"github.com/ranqly/contest-engine/repositories"
)

// Broadcaster рассылает событие подписчикам комнаты конкурса.
// Реализуется realtime-хабом; в тестах подменяется заглушкой.
type Broadcaster interface {
	BroadcastToContest(contestID int, messageType string, payload interface{})
}

// Типы сообщений хаба.
const (
	MsgPhaseChanged     = "PHASE_CHANGED"
	MsgEntrySubmitted   = "ENTRY_SUBMITTED"
	MsgContestFinalized = "CONTEST_FINALIZED"
)

type CreateContestInput struct {
	Title          string                 `json:"title"`
	Description    *string                `json:"description"`
	Category       models.ContestCategory `json:"category"`
	PrizeAmount    int64                  `json:"prize_amount"`
	Currency       string                 `json:"currency"`
	WinnersCount   int                    `json:"winners_count"`
	MaxSubmissions int                    `json:"max_submissions"`
	BallotStyle    models.BallotStyle     `json:"ballot_style"`
	StartDate      time.Time              `json:"start_date"`
	// Длительности фаз в секундах.
	SubmissionSecs   int64 `json:"submission_secs"`
	ScoringSecs      int64 `json:"scoring_secs"`
	DisputesSecs     int64 `json:"disputes_secs"`
	VotingSecs       int64 `json:"voting_secs"`
	JudgingSecs      int64 `json:"judging_secs"`
	FinalizationSecs int64 `json:"finalization_secs"`
}

type ListContestsFilter = repositories.ListContestsFilter

// ContestService отвечает за создание конкурсов, чтение их состояния и
// ручные переводы фаз. Фаза всегда вычисляется часами фаз, поэтому
// "перевод" — это сдвиг расписания с обязательной журнальной записью.
type ContestService struct {
	tx          repositories.TxRunner
	contestRepo repositories.ContestRepository
	entryRepo   repositories.EntryRepository
	userRepo    repositories.UserRepository
	locks       *ContestLocks
	hub         Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewContestService(
	tx repositories.TxRunner,
	contestRepo repositories.ContestRepository,
	entryRepo repositories.EntryRepository,
	userRepo repositories.UserRepository,
	locks *ContestLocks,
	hub Broadcaster,
	logger *slog.Logger,
) *ContestService {
	return &ContestService{
		tx:          tx,
		contestRepo: contestRepo,
		entryRepo:   entryRepo,
		userRepo:    userRepo,
		locks:       locks,
		hub:         hub,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *ContestService) CreateContest(ctx context.Context, organizerID int, input CreateContestInput) (*models.Contest, error) {
	organizer, err := s.userRepo.GetByID(ctx, organizerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load organizer: %w", err)
	}
	if organizer.Role != models.RoleOrganizer && organizer.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	if input.Title == "" || len(input.Title) > 200 {
		return nil, ErrContestTitleRequired
	}
	if input.StartDate.IsZero() {
		return nil, ErrContestInvalidStartDate
	}
	if input.MaxSubmissions < 0 {
		return nil, ErrContestInvalidCapacity
	}
	switch input.BallotStyle {
	case models.BallotNumeric, models.BallotRanking:
	default:
		return nil, ErrContestInvalidBallotStyle
	}
	switch input.Category {
	case models.CategoryContent, models.CategoryDesign, models.CategoryDev, models.CategoryResearch, models.CategoryOther:
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidationFailed, input.Category)
	}
	schedule := models.PhaseSchedule{
		Submission:   time.Duration(input.SubmissionSecs) * time.Second,
		Scoring:      time.Duration(input.ScoringSecs) * time.Second,
		Disputes:     time.Duration(input.DisputesSecs) * time.Second,
		Voting:       time.Duration(input.VotingSecs) * time.Second,
		Judging:      time.Duration(input.JudgingSecs) * time.Second,
		Finalization: time.Duration(input.FinalizationSecs) * time.Second,
	}
	if err := validateSchedule(schedule); err != nil {
		return nil, err
	}

	contest := &models.Contest{
		Title:          input.Title,
		Description:    input.Description,
		Category:       input.Category,
		OrganizerID:    organizerID,
		PrizeAmount:    input.PrizeAmount,
		Currency:       input.Currency,
		WinnersCount:   input.WinnersCount,
		MaxSubmissions: input.MaxSubmissions,
		BallotStyle:    input.BallotStyle,
		StartDate:      input.StartDate,
		Schedule:       schedule,
	}

	if err := s.contestRepo.Create(ctx, contest); err != nil {
		if errors.Is(err, repositories.ErrContestTitleConflict) {
			return nil, ErrContestTitleConflict
		}
		return nil, fmt.Errorf("failed to create contest: %w", err)
	}

	s.populateDerived(ctx, contest)
	return contest, nil
}

func validateSchedule(s models.PhaseSchedule) error {
	if s.Submission <= 0 {
		return ErrContestInvalidSchedule
	}
	for _, d := range []time.Duration{s.Scoring, s.Disputes, s.Voting, s.Judging, s.Finalization} {
		if d < 0 {
			return ErrContestInvalidSchedule
		}
	}
	return nil
}

func (s *ContestService) GetContest(ctx context.Context, id int) (*models.Contest, error) {
	contest, err := s.contestRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	s.populateDerived(ctx, contest)
	return contest, nil
}

func (s *ContestService) ListContests(ctx context.Context, filter ListContestsFilter) ([]models.Contest, error) {
	contests, err := s.contestRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range contests {
		s.populateDerived(ctx, &contests[i])
	}
	if contests == nil {
		contests = []models.Contest{}
	}
	return contests, nil
}

// EffectivePhase возвращает фазу конкурса с учётом правила пустого
// конкурса: если приём закрыт и живых работ нет — конкурс завершён
// ("нет контента — нет конкурса"), промежуточные фазы пропускаются.
func (s *ContestService) EffectivePhase(ctx context.Context, contest *models.Contest) (models.ContestPhase, error) {
	current := phase.Current(contest, s.now())
	if current == models.PhaseSubmission || current == models.PhaseCompleted {
		return current, nil
	}
	liveCount, err := s.entryRepo.CountLive(ctx, nil, contest.ID)
	if err != nil {
		return "", err
	}
	if liveCount == 0 {
		return models.PhaseCompleted, nil
	}
	return current, nil
}

func (s *ContestService) populateDerived(ctx context.Context, contest *models.Contest) {
	now := s.now()
	effective, err := s.EffectivePhase(ctx, contest)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to compute effective phase",
			slog.Int("contest_id", contest.ID), slog.Any("error", err))
		effective = phase.Current(contest, now)
	}
	contest.Phase = effective
	if deadline, ok := phase.Deadline(contest, now); ok {
		contest.PhaseDeadline = &deadline
	}
	if count, err := s.entryRepo.CountLive(ctx, nil, contest.ID); err == nil {
		contest.EntriesCount = count
	}
}

// RequestTransition — единственный способ сдвинуть фазу конкурса:
// ранний переход на следующую фазу (target = следующая) либо продление
// текущей (target = текущая, extendBy > 0). Всегда журналируется с
// идентичностью актора и причиной.
func (s *ContestService) RequestTransition(ctx context.Context, contestID, actorID int, target models.ContestPhase, reason string, extendBy time.Duration) error {
	if reason == "" {
		return fmt.Errorf("%w: override reason is required", ErrValidationFailed)
	}
	if phase.Index(target) < 0 {
		return fmt.Errorf("%w: unknown phase %q", ErrValidationFailed, target)
	}

	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	unlock := s.locks.Lock(contestID)
	defer unlock()

	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return ErrContestNotFound
		}
		return err
	}
	if actor.Role != models.RoleAdmin && contest.OrganizerID != actorID {
		return ErrForbidden
	}

	now := s.now()
	current := phase.Current(contest, now)
	if current == models.PhaseCompleted {
		return fmt.Errorf("%w: contest is completed", ErrInvalidTransition)
	}

	schedule := contest.Schedule
	switch {
	case target == current && extendBy > 0:
		addToPhase(&schedule, current, extendBy)
	case phase.IsAdjacentForward(current, target):
		// Ранний переход: текущая фаза обрезается так, чтобы закончиться
		// прямо сейчас; расписание остаётся единственным источником фазы.
		elapsed := now.Sub(phase.StartOf(contest, current))
		if elapsed < 0 {
			elapsed = 0
		}
		setPhaseDuration(&schedule, current, elapsed)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}

	override := &models.PhaseOverride{
		ContestID:  contestID,
		ActorID:    actorID,
		FromPhase:  current,
		ToPhase:    target,
		ExtendedBy: extendBy,
		Reason:     reason,
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.contestRepo.UpdateSchedule(ctx, exec, contestID, contest.StartDate, schedule); err != nil {
			return err
		}
		return s.contestRepo.LogOverride(ctx, exec, override)
	})
	if err != nil {
		return fmt.Errorf("failed to apply phase override: %w", err)
	}

	s.logger.InfoContext(ctx, "phase override applied",
		slog.Int("contest_id", contestID),
		slog.Int("actor_id", actorID),
		slog.String("from", string(current)),
		slog.String("to", string(target)),
		slog.Duration("extended_by", extendBy),
		slog.String("reason", reason),
	)

	contest.Schedule = schedule
	s.hub.BroadcastToContest(contestID, MsgPhaseChanged, map[string]interface{}{
		"contest_id": contestID,
		"phase":      phase.Current(contest, s.now()),
		"override":   true,
	})
	return nil
}

// ListOverrides возвращает журнал ручных переводов фаз конкурса.
func (s *ContestService) ListOverrides(ctx context.Context, contestID int) ([]models.PhaseOverride, error) {
	if _, err := s.contestRepo.GetByID(ctx, nil, contestID); err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	overrides, err := s.contestRepo.ListOverrides(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		overrides = []models.PhaseOverride{}
	}
	return overrides, nil
}

func addToPhase(s *models.PhaseSchedule, p models.ContestPhase, d time.Duration) {
	switch p {
	case models.PhaseSubmission:
		s.Submission += d
	case models.PhaseScoring:
		s.Scoring += d
	case models.PhaseDisputes:
		s.Disputes += d
	case models.PhaseVoting:
		s.Voting += d
	case models.PhaseJudging:
		s.Judging += d
	case models.PhaseFinalization:
		s.Finalization += d
	}
}

func setPhaseDuration(s *models.PhaseSchedule, p models.ContestPhase, d time.Duration) {
	switch p {
	case models.PhaseSubmission:
		s.Submission = d
	case models.PhaseScoring:
		s.Scoring = d
	case models.PhaseDisputes:
		s.Disputes = d
	case models.PhaseVoting:
		s.Voting = d
	case models.PhaseJudging:
		s.Judging = d
	case models.PhaseFinalization:
		s.Finalization = d
	}
}
