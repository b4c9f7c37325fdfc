package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/phase"
	"github.com/ranqly/contest-engine/repositories"
	"github.com/ranqly/contest-engine/scoring"
)

// ResultService собирает три источника оценок в итоговый рейтинг.
// Финализация однократна: CAS на finalized_at в БД гарантирует, что
// второй вызов (ручной против планировщика) не перепишет рейтинг.
type ResultService struct {
	tx          repositories.TxRunner
	contestRepo repositories.ContestRepository
	entryRepo   repositories.EntryRepository
	scoreRepo   repositories.ScoreRepository
	userRepo    repositories.UserRepository
	votes       *VoteService
	judges      *JudgeService
	locks       *ContestLocks
	hub         Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewResultService(
	tx repositories.TxRunner,
	contestRepo repositories.ContestRepository,
	entryRepo repositories.EntryRepository,
	scoreRepo repositories.ScoreRepository,
	userRepo repositories.UserRepository,
	votes *VoteService,
	judges *JudgeService,
	locks *ContestLocks,
	hub Broadcaster,
	logger *slog.Logger,
) *ResultService {
	return &ResultService{
		tx:          tx,
		contestRepo: contestRepo,
		entryRepo:   entryRepo,
		scoreRepo:   scoreRepo,
		userRepo:    userRepo,
		votes:       votes,
		judges:      judges,
		locks:       locks,
		hub:         hub,
		logger:      logger,
		now:         time.Now,
	}
}

// SetAlgorithmicScore принимает нормализованную оценку внешнего скорера.
// Доступно администратору начиная с фазы scoring и до финализации;
// повторная запись заменяет предыдущую.
func (s *ResultService) SetAlgorithmicScore(ctx context.Context, contestID, entryID, actorID int, score float64) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("%w: algorithmic score must be in [0,100]", ErrValidationFailed)
	}

	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if actor.Role != models.RoleAdmin {
		return ErrForbidden
	}

	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return ErrContestNotFound
		}
		return err
	}
	if contest.FinalizedAt != nil {
		return ErrAlreadyFinalized
	}
	if phase.Index(phase.Current(contest, s.now())) < phase.Index(models.PhaseScoring) {
		return fmt.Errorf("%w: scoring has not started", ErrPhaseClosed)
	}

	entry, err := s.entryRepo.GetByID(ctx, nil, entryID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			return ErrEntryNotFound
		}
		return err
	}
	if entry.ContestID != contestID {
		return ErrEntryNotFound
	}

	return s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.scoreRepo.UpsertAlgorithmic(ctx, exec, contestID, entryID, score)
	})
}

// Finalize замораживает итоговые баллы и рейтинг конкурса. Пересчитывает
// community-подсчёт и судейскую агрегацию (оба идемпотентны), сводит три
// источника с весами 0.4/0.3/0.3 и записывает рейтинг одним
// транзакционным проходом вместе с CAS-меткой finalized_at.
func (s *ResultService) Finalize(ctx context.Context, contestID int) (*models.Ranking, error) {
	unlock := s.locks.Lock(contestID)
	defer unlock()

	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	if contest.FinalizedAt != nil {
		return nil, ErrAlreadyFinalized
	}
	now := s.now()
	if phase.Index(phase.Current(contest, now)) < phase.Index(models.PhaseFinalization) {
		return nil, fmt.Errorf("%w: finalization window has not opened", ErrNotReady)
	}

	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID, true)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		// Пустой конкурс завершается без рейтинга.
		if err := s.markFinalized(ctx, contestID, now); err != nil {
			return nil, err
		}
		return &models.Ranking{ContestID: contestID, FinalizedAt: now, Items: []models.RankingItem{}}, nil
	}

	community, err := s.votes.Tally(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("community tally: %w", err)
	}
	judge, err := s.judges.Aggregate(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("judge aggregation: %w", err)
	}

	judgeCount, err := s.judges.CountJudges(ctx, contestID)
	if err != nil {
		return nil, err
	}
	hasJudges := judgeCount > 0
	if !hasJudges {
		s.logger.InfoContext(ctx, "no judges on roster, redistributing judge weight",
			slog.Int("contest_id", contestID),
			slog.Float64("algorithmic_weight", scoring.WeightAlgorithmic/(scoring.WeightAlgorithmic+scoring.WeightCommunity)),
			slog.Float64("community_weight", scoring.WeightCommunity/(scoring.WeightAlgorithmic+scoring.WeightCommunity)),
		)
	}

	records, err := s.scoreRepo.ListByContest(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}
	algorithmic := make(map[int]*float64, len(records))
	for i := range records {
		algorithmic[records[i].EntryID] = records[i].Algorithmic
	}

	ranked := make([]scoring.RankedEntry, 0, len(entries))
	byID := make(map[int]models.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
		alg := algorithmic[e.ID]
		if alg == nil {
			return nil, fmt.Errorf("%w: entry %d", ErrMissingAlgorithmicScore, e.ID)
		}
		final := scoring.Combine(*alg, community[e.ID], judge[e.ID], hasJudges)
		ranked = append(ranked, scoring.RankedEntry{
			EntryID:     e.ID,
			Final:       final,
			Judge:       judge[e.ID],
			Community:   community[e.ID],
			SubmittedAt: e.SubmittedAt,
		})
	}
	scoring.SortRanking(ranked)

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.contestRepo.MarkFinalized(ctx, exec, contestID, now); err != nil {
			if errors.Is(err, repositories.ErrContestAlreadyFinalized) {
				return ErrAlreadyFinalized
			}
			return err
		}
		for i := range ranked {
			rank := i + 1
			if err := s.scoreRepo.SetFinal(ctx, exec, contestID, ranked[i].EntryID, ranked[i].Final, now); err != nil {
				return err
			}
			if err := s.entryRepo.UpdateFinalRank(ctx, exec, ranked[i].EntryID, &rank); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	items := make([]models.RankingItem, len(ranked))
	for i, r := range ranked {
		e := byID[r.EntryID]
		items[i] = models.RankingItem{
			Rank:        i + 1,
			EntryID:     r.EntryID,
			Title:       e.Title,
			AuthorID:    e.AuthorID,
			Final:       r.Final,
			Algorithmic: *algorithmic[r.EntryID],
			Community:   r.Community,
			Judge:       r.Judge,
			SubmittedAt: e.SubmittedAt,
		}
	}
	ranking := &models.Ranking{ContestID: contestID, FinalizedAt: now, Items: items}

	s.logger.InfoContext(ctx, "contest finalized",
		slog.Int("contest_id", contestID),
		slog.Int("ranked_entries", len(items)),
		slog.Bool("has_judges", hasJudges),
	)
	s.hub.BroadcastToContest(contestID, MsgContestFinalized, map[string]interface{}{
		"contest_id": contestID,
		"winners":    topEntryIDs(items, contest.WinnersCount),
	})
	return ranking, nil
}

func (s *ResultService) markFinalized(ctx context.Context, contestID int, at time.Time) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.contestRepo.MarkFinalized(ctx, exec, contestID, at)
	})
	if errors.Is(err, repositories.ErrContestAlreadyFinalized) {
		return ErrAlreadyFinalized
	}
	return err
}

func topEntryIDs(items []models.RankingItem, n int) []int {
	if n <= 0 || n > len(items) {
		n = len(items)
	}
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		ids[i] = items[i].EntryID
	}
	return ids
}

// GetRanking возвращает замороженный рейтинг финализированного конкурса.
func (s *ResultService) GetRanking(ctx context.Context, contestID int) (*models.Ranking, error) {
	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	if contest.FinalizedAt == nil {
		return nil, fmt.Errorf("%w: contest has no frozen ranking yet", ErrNotReady)
	}

	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID, true)
	if err != nil {
		return nil, err
	}
	records, err := s.scoreRepo.ListByContest(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}
	scores := make(map[int]models.ScoreRecord, len(records))
	for _, r := range records {
		scores[r.EntryID] = r
	}

	items := make([]models.RankingItem, 0, len(entries))
	for _, e := range entries {
		if e.FinalRank == nil {
			continue
		}
		rec := scores[e.ID]
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
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Rank < items[j].Rank })

	return &models.Ranking{ContestID: contestID, FinalizedAt: *contest.FinalizedAt, Items: items}, nil
}
