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
	"github.com/ranqly/contest-engine/scoring"
)

// Минимальная длина обоснования судьи по каждой оценённой работе.
const rationaleMinLen = 50

// Границы шкалы подоценок.
const subScoreMax = 10

type BallotInput struct {
	Items   []models.BallotItem `json:"items,omitempty"`
	Ranking []int               `json:"ranking,omitempty"`
}

// JudgeService — судейство: ростер судей конкурса, приём бюллетеней и
// агрегация в нормализованную судейскую оценку. Судьи анонимны друг для
// друга и для организаторов до финализации; их идентичность хранится
// только ради audit pack.
type JudgeService struct {
	tx          repositories.TxRunner
	ballotRepo  repositories.BallotRepository
	entryRepo   repositories.EntryRepository
	contestRepo repositories.ContestRepository
	userRepo    repositories.UserRepository
	scoreRepo   repositories.ScoreRepository
	locks       *ContestLocks
	logger      *slog.Logger
	now         func() time.Time
}

func NewJudgeService(
	tx repositories.TxRunner,
	ballotRepo repositories.BallotRepository,
	entryRepo repositories.EntryRepository,
	contestRepo repositories.ContestRepository,
	userRepo repositories.UserRepository,
	scoreRepo repositories.ScoreRepository,
	locks *ContestLocks,
	logger *slog.Logger,
) *JudgeService {
	return &JudgeService{
		tx:          tx,
		ballotRepo:  ballotRepo,
		entryRepo:   entryRepo,
		contestRepo: contestRepo,
		userRepo:    userRepo,
		scoreRepo:   scoreRepo,
		locks:       locks,
		logger:      logger,
		now:         time.Now,
	}
}

// AssignJudge добавляет судью в ростер конкурса. Доступно организатору
// конкурса или администратору, до закрытия фазы judging.
func (s *JudgeService) AssignJudge(ctx context.Context, contestID, actorID, judgeID int) error {
	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	judge, err := s.userRepo.GetByID(ctx, judgeID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if judge.Role != models.RoleJudge {
		return fmt.Errorf("%w: user %d is not a judge", ErrValidationFailed, judgeID)
	}

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
	if phase.Index(phase.Current(contest, s.now())) > phase.Index(models.PhaseJudging) {
		return fmt.Errorf("%w: judging is over", ErrPhaseClosed)
	}

	err = s.ballotRepo.AssignJudge(ctx, &models.ContestJudge{ContestID: contestID, JudgeID: judgeID})
	if errors.Is(err, repositories.ErrJudgeAlreadyAssigned) {
		return nil // идемпотентно
	}
	return err
}

// SubmitBallot принимает бюллетень судьи в фазе judging. Бюллетень
// атомарен: любая невалидная позиция отклоняет его целиком. Повторная
// отправка заменяет предыдущий бюллетень до закрытия фазы.
func (s *JudgeService) SubmitBallot(ctx context.Context, contestID, judgeID int, input BallotInput) (*models.JudgeBallot, error) {
	unlock := s.locks.Lock(contestID)
	defer unlock()

	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	if phase.Current(contest, s.now()) != models.PhaseJudging {
		return nil, fmt.Errorf("%w: judging is not open", ErrPhaseClosed)
	}

	assigned, err := s.ballotRepo.IsJudgeAssigned(ctx, nil, contestID, judgeID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrForbidden
	}

	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID, true)
	if err != nil {
		return nil, err
	}
	liveIDs := make(map[int]bool, len(entries))
	for _, e := range entries {
		liveIDs[e.ID] = true
	}

	ballot := &models.JudgeBallot{ContestID: contestID, JudgeID: judgeID, Style: contest.BallotStyle}

	switch contest.BallotStyle {
	case models.BallotNumeric:
		if len(input.Ranking) > 0 {
			return nil, fmt.Errorf("%w: contest expects numeric sub-scores", ErrMixedBallotStyle)
		}
		if err := validateNumericBallot(input.Items, liveIDs); err != nil {
			return nil, err
		}
		ballot.Items = input.Items
	case models.BallotRanking:
		if len(input.Items) > 0 {
			return nil, fmt.Errorf("%w: contest expects a ranking", ErrMixedBallotStyle)
		}
		if err := validateRankingBallot(input.Ranking, liveIDs); err != nil {
			return nil, err
		}
		ballot.Ranking = input.Ranking
	default:
		return nil, ErrContestInvalidBallotStyle
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.ballotRepo.Upsert(ctx, exec, ballot)
	})
	if err != nil {
		return nil, err
	}
	return ballot, nil
}

func validateNumericBallot(items []models.BallotItem, liveIDs map[int]bool) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: ballot must rate at least one entry", ErrValidationFailed)
	}
	seen := make(map[int]bool, len(items))
	for _, item := range items {
		if !liveIDs[item.EntryID] {
			return fmt.Errorf("%w: entry %d is not part of this contest", ErrValidationFailed, item.EntryID)
		}
		if seen[item.EntryID] {
			return fmt.Errorf("%w: entry %d rated twice", ErrValidationFailed, item.EntryID)
		}
		seen[item.EntryID] = true
		if item.Scores == nil {
			return fmt.Errorf("%w: entry %d has no sub-scores", ErrValidationFailed, item.EntryID)
		}
		for name, v := range map[string]float64{
			"quality":     item.Scores.Quality,
			"originality": item.Scores.Originality,
			"clarity":     item.Scores.Clarity,
			"depth":       item.Scores.Depth,
		} {
			if v < 0 || v > subScoreMax {
				return fmt.Errorf("%w: %s for entry %d must be in [0,%d]", ErrValidationFailed, name, item.EntryID, subScoreMax)
			}
		}
		if len(item.Rationale) < rationaleMinLen {
			return fmt.Errorf("%w: rationale for entry %d must be at least %d characters", ErrValidationFailed, item.EntryID, rationaleMinLen)
		}
	}
	return nil
}

func validateRankingBallot(ranking []int, liveIDs map[int]bool) error {
	if len(ranking) == 0 {
		return fmt.Errorf("%w: ballot must rank at least one entry", ErrValidationFailed)
	}
	if len(ranking) != len(liveIDs) {
		return fmt.Errorf("%w: ranking must order all %d live entries", ErrValidationFailed, len(liveIDs))
	}
	seen := make(map[int]bool, len(ranking))
	for _, entryID := range ranking {
		if !liveIDs[entryID] {
			return fmt.Errorf("%w: entry %d is not part of this contest", ErrValidationFailed, entryID)
		}
		if seen[entryID] {
			return fmt.Errorf("%w: entry %d ranked twice", ErrValidationFailed, entryID)
		}
		seen[entryID] = true
	}
	return nil
}

// Aggregate сводит бюллетени в судейскую оценку [0,100] на работу.
// Numeric: среднее средних подоценок по судьям, масштаб 0..10 -> 0..100.
// Ranking: баллы Борда, суммированные по судьям, затем min-max
// нормализация. Допустимо после закрытия фазы judging.
func (s *JudgeService) Aggregate(ctx context.Context, contestID int) (map[int]float64, error) {
	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	if phase.Index(phase.Current(contest, s.now())) <= phase.Index(models.PhaseJudging) {
		return nil, fmt.Errorf("%w: judging has not closed", ErrNotReady)
	}

	ballots, err := s.ballotRepo.ListByContest(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}

	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID, true)
	if err != nil {
		return nil, err
	}
	live := make(map[int]bool, len(entries))
	for _, e := range entries {
		live[e.ID] = true
	}

	var result map[int]float64
	switch contest.BallotStyle {
	case models.BallotNumeric:
		perEntry := make(map[int][]float64)
		for _, b := range ballots {
			for _, item := range b.Items {
				// Оценки работ, выбывших после подачи бюллетеня,
				// отбрасываются.
				if !live[item.EntryID] {
					continue
				}
				perEntry[item.EntryID] = append(perEntry[item.EntryID], item.Scores.Mean())
			}
		}
		result = scoring.SubScoreMeans(perEntry)
	case models.BallotRanking:
		// Дисквалификация возможна вплоть до финализации, то есть уже
		// после подачи части бюллетеней. Сохранённые ранжирования
		// сужаются до живых на момент агрегации работ: живое множество
		// только уменьшается, поэтому после фильтрации каждое остаётся
		// строгой перестановкой одного и того же множества.
		var rankings [][]int
		for _, b := range ballots {
			filtered := make([]int, 0, len(b.Ranking))
			for _, entryID := range b.Ranking {
				if live[entryID] {
					filtered = append(filtered, entryID)
				}
			}
			if len(filtered) == 0 {
				continue
			}
			rankings = append(rankings, filtered)
		}
		if len(rankings) == 0 {
			result = map[int]float64{}
			break
		}
		points, err := scoring.BordaPoints(rankings)
		if err != nil {
			return nil, fmt.Errorf("invalid stored rankings for contest %d: %w", contestID, err)
		}
		result = scoring.MinMax(points)
	default:
		return nil, ErrContestInvalidBallotStyle
	}

	// Работы без единой судейской оценки получают 0, чтобы карта
	// покрывала все живые работы.
	for _, e := range entries {
		if _, ok := result[e.ID]; !ok {
			result[e.ID] = 0
		}
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		for entryID, score := range result {
			if err := s.scoreRepo.UpsertJudge(ctx, exec, contestID, entryID, score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "judge scores aggregated",
		slog.Int("contest_id", contestID),
		slog.Int("ballots", len(ballots)),
	)
	return result, nil
}

// CountJudges возвращает размер ростера (нужен политике нулевого судейства).
func (s *JudgeService) CountJudges(ctx context.Context, contestID int) (int, error) {
	return s.ballotRepo.CountJudges(ctx, nil, contestID)
}
