package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/phase"
	"github.com/ranqly/contest-engine/repositories"
)

const watcherConcurrency = 4

// PhaseWatcher — фоновый обход незавершённых конкурсов. Фаза всегда
// вычисляется из расписания, поэтому watcher ничего не "переключает":
// он сравнивает текущую фазу с last_observed_phase, и на пересечении
// границы запускает побочные эффекты (подсчёт голосов после voting,
// агрегацию после judging, финализацию и сборку audit pack) и
// рассылает PHASE_CHANGED подписчикам.
type PhaseWatcher struct {
	contestRepo repositories.ContestRepository
	votes       *VoteService
	judges      *JudgeService
	results     *ResultService
	audits      *AuditService
	hub         Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewPhaseWatcher(
	contestRepo repositories.ContestRepository,
	votes *VoteService,
	judges *JudgeService,
	results *ResultService,
	audits *AuditService,
	hub Broadcaster,
	logger *slog.Logger,
) *PhaseWatcher {
	return &PhaseWatcher{
		contestRepo: contestRepo,
		votes:       votes,
		judges:      judges,
		results:     results,
		audits:      audits,
		hub:         hub,
		logger:      logger,
		now:         time.Now,
	}
}

// Run крутит Sweep до отмены контекста.
func (w *PhaseWatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.logger.Info("phase watcher started", slog.Duration("interval", interval))

	if err := w.Sweep(ctx); err != nil {
		w.logger.Error("phase watcher: initial sweep failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("phase watcher stopped")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("phase watcher: sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep обрабатывает все нефинализированные конкурсы. Ошибки одного
// конкурса логируются и не прерывают обход остальных.
func (w *PhaseWatcher) Sweep(ctx context.Context) error {
	contests, err := w.contestRepo.ListUnfinished(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(watcherConcurrency)
	for i := range contests {
		contest := contests[i]
		g.Go(func() error {
			if err := w.observe(gctx, &contest); err != nil {
				w.logger.ErrorContext(gctx, "phase watcher: contest observation failed",
					slog.Int("contest_id", contest.ID),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *PhaseWatcher) observe(ctx context.Context, contest *models.Contest) error {
	current := phase.Current(contest, w.now())
	curIdx := phase.Index(current)

	// Финализация проверяется на каждом тике, не только на границе:
	// она могла быть отложена из-за неполных алгоритмических оценок.
	if curIdx >= phase.Index(models.PhaseFinalization) && contest.FinalizedAt == nil {
		if err := w.finalize(ctx, contest.ID); err != nil {
			return err
		}
	}

	if current == contest.LastObservedPhase {
		return nil
	}

	w.logger.InfoContext(ctx, "phase boundary crossed",
		slog.Int("contest_id", contest.ID),
		slog.String("from", string(contest.LastObservedPhase)),
		slog.String("to", string(current)),
	)

	lastIdx := phase.Index(contest.LastObservedPhase)

	// Побочные эффекты границ. Каждый идемпотентен, поэтому повторный
	// проход после сбоя безопасен.
	if lastIdx <= phase.Index(models.PhaseVoting) && curIdx > phase.Index(models.PhaseVoting) {
		if _, err := w.votes.Tally(ctx, contest.ID); err != nil && !errors.Is(err, ErrNotReady) {
			return err
		}
	}
	if lastIdx <= phase.Index(models.PhaseJudging) && curIdx > phase.Index(models.PhaseJudging) {
		if _, err := w.judges.Aggregate(ctx, contest.ID); err != nil && !errors.Is(err, ErrNotReady) {
			return err
		}
	}

	if err := w.contestRepo.UpdateLastObservedPhase(ctx, nil, contest.ID, current); err != nil {
		return err
	}
	w.hub.BroadcastToContest(contest.ID, MsgPhaseChanged, map[string]interface{}{
		"contest_id": contest.ID,
		"phase":      current,
	})
	return nil
}

func (w *PhaseWatcher) finalize(ctx context.Context, contestID int) error {
	_, err := w.results.Finalize(ctx, contestID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyFinalized):
		// Кто-то финализировал вручную между тиками.
	case errors.Is(err, ErrMissingAlgorithmicScore):
		// Не фатально для обхода: скорер ещё не прислал оценки,
		// попробуем на следующем тике.
		w.logger.WarnContext(ctx, "finalization postponed, algorithmic scores incomplete",
			slog.Int("contest_id", contestID))
		return nil
	default:
		return err
	}

	if _, err := w.audits.Build(ctx, contestID); err != nil && !errors.Is(err, ErrAuditPackAlreadyBuilt) {
		return err
	}
	return nil
}
