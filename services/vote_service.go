package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/phase"
	"github.com/ranqly/contest-engine/repositories"
	"github.com/ranqly/contest-engine/scoring"
)

// Минимальная длина обоснования голоса.
const voteJustificationMinLen = 20

// VoteService реализует community-голосование: выпуск PoI-кредешнлов,
// двухфазный commit/reveal протокол и подсчёт нормализованной оценки.
// Голос скрыт за commitment-хэшом до окна раскрытия, что исключает
// копирование чужих голосов до конца коммит-окна.
type VoteService struct {
	tx          repositories.TxRunner
	voteRepo    repositories.VoteRepository
	entryRepo   repositories.EntryRepository
	contestRepo repositories.ContestRepository
	scoreRepo   repositories.ScoreRepository
	locks       *ContestLocks
	logger      *slog.Logger
	now         func() time.Time
}

func NewVoteService(
	tx repositories.TxRunner,
	voteRepo repositories.VoteRepository,
	entryRepo repositories.EntryRepository,
	contestRepo repositories.ContestRepository,
	scoreRepo repositories.ScoreRepository,
	locks *ContestLocks,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{
		tx:          tx,
		voteRepo:    voteRepo,
		entryRepo:   entryRepo,
		contestRepo: contestRepo,
		scoreRepo:   scoreRepo,
		locks:       locks,
		logger:      logger,
		now:         time.Now,
	}
}

// MintCredential выпускает кредешнл голосующего: не более одного на
// аккаунт на конкурс, uniqueness держит ключ в БД. Повторный вызов
// возвращает ErrAlreadyMinted.
func (s *VoteService) MintCredential(ctx context.Context, contestID, voterID int) (*models.VoterCredential, error) {
	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	if phase.Current(contest, s.now()) == models.PhaseCompleted {
		return nil, fmt.Errorf("%w: contest is completed", ErrPhaseClosed)
	}

	cred := &models.VoterCredential{ContestID: contestID, VoterID: voterID}
	if err := s.voteRepo.MintCredential(ctx, cred); err != nil {
		if errors.Is(err, repositories.ErrCredentialConflict) {
			return nil, ErrAlreadyMinted
		}
		return nil, err
	}
	return cred, nil
}

// CommitVote фиксирует обязательство голоса в коммит-окне фазы voting.
// Направление объявляется сразу — без этого нельзя атомарно проверить
// бюджеты; обоснование и nonce остаются скрытыми за хэшом.
// Повторный коммит по той же работе заменяет предыдущий (против бюджета
// считается только последний). Проверка бюджета — read-modify-write в
// транзакции с FOR UPDATE на строке кредешнла, поэтому параллельные
// коммиты одного голосующего не могут пробить лимит.
func (s *VoteService) CommitVote(ctx context.Context, contestID, entryID, voterID int, direction models.VoteDirection, commitmentHash string) (*models.VoteCommit, error) {
	if direction != models.VoteUp && direction != models.VoteDown {
		return nil, fmt.Errorf("%w: direction must be up or down", ErrValidationFailed)
	}
	if len(commitmentHash) != 64 {
		return nil, fmt.Errorf("%w: commitment hash must be a hex-encoded sha256", ErrValidationFailed)
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
	if phase.Current(contest, now) != models.PhaseVoting {
		return nil, fmt.Errorf("%w: voting is not open", ErrPhaseClosed)
	}
	if from, to := phase.CommitWindow(contest); !phase.InWindow(now, from, to) {
		return nil, fmt.Errorf("%w: commit sub-window is over", ErrWindowClosed)
	}

	entry, err := s.entryRepo.GetByID(ctx, nil, entryID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	if entry.ContestID != contestID || !entry.Status.IsLive() {
		return nil, ErrEntryNotFound
	}

	commit := &models.VoteCommit{
		ContestID:      contestID,
		EntryID:        entryID,
		VoterID:        voterID,
		Direction:      direction,
		CommitmentHash: commitmentHash,
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if _, err := s.voteRepo.LockCredential(ctx, exec, contestID, voterID); err != nil {
			if errors.Is(err, repositories.ErrCredentialNotFound) {
				return fmt.Errorf("%w: mint a voting credential first", ErrForbidden)
			}
			return err
		}

		// Существующий коммит по этой работе заменяется, поэтому его
		// направление исключается из подсчёта бюджета.
		var replacing *models.VoteCommit
		if prev, err := s.voteRepo.GetCommit(ctx, exec, contestID, entryID, voterID); err == nil {
			replacing = prev
		} else if !errors.Is(err, repositories.ErrVoteCommitNotFound) {
			return err
		}

		budget := models.UpVoteBudget
		if direction == models.VoteDown {
			budget = models.DownVoteBudget
		}
		count, err := s.voteRepo.CountCommitsByDirection(ctx, exec, contestID, voterID, direction)
		if err != nil {
			return err
		}
		if replacing != nil && replacing.Direction == direction {
			count--
		}
		if count >= budget {
			return fmt.Errorf("%w: %s budget is %d votes", ErrBudgetExceeded, direction, budget)
		}

		return s.voteRepo.UpsertCommit(ctx, exec, commit)
	})
	if err != nil {
		return nil, err
	}
	return commit, nil
}

// RevealVote раскрывает голос в окне раскрытия. Хэш пересчитывается по
// раскрытым значениям и сверяется с сохранённым обязательством; любое
// расхождение (включая подмену направления) — ErrRevealMismatch.
// Слишком короткое обоснование отклоняется валидацией: такой голос
// остаётся нераскрытым и не учитывается ни за, ни против.
func (s *VoteService) RevealVote(ctx context.Context, contestID, entryID, voterID int, direction models.VoteDirection, justification, nonce string) error {
	unlock := s.locks.Lock(contestID)
	defer unlock()

	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return ErrContestNotFound
		}
		return err
	}
	now := s.now()
	if from, to := phase.RevealWindow(contest); !phase.InWindow(now, from, to) {
		return fmt.Errorf("%w: reveal sub-window is not open", ErrWindowClosed)
	}

	commit, err := s.voteRepo.GetCommit(ctx, nil, contestID, entryID, voterID)
	if err != nil {
		if errors.Is(err, repositories.ErrVoteCommitNotFound) {
			return fmt.Errorf("%w: no commitment for this entry", ErrRevealMismatch)
		}
		return err
	}

	expected := models.CommitmentHash(direction, justification, nonce)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(commit.CommitmentHash)) != 1 || direction != commit.Direction {
		return ErrRevealMismatch
	}

	if len(justification) < voteJustificationMinLen {
		return fmt.Errorf("%w: justification must be at least %d characters", ErrValidationFailed, voteJustificationMinLen)
	}

	return s.voteRepo.MarkRevealed(ctx, nil, commit.ID, justification, now)
}

// Tally считает community-оценку: чистая сумма раскрытых голосов по
// каждой живой работе, затем min-max нормализация на [0,100] по всем
// живым работам конкурса. Нераскрытые коммиты не учитываются вовсе.
// Допустим только после закрытия окна раскрытия.
func (s *VoteService) Tally(ctx context.Context, contestID int) (map[int]float64, error) {
	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repositories.ErrContestNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	current := phase.Current(contest, s.now())
	if phase.Index(current) <= phase.Index(models.PhaseVoting) {
		return nil, fmt.Errorf("%w: reveal sub-window has not closed", ErrNotReady)
	}

	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID, true)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return map[int]float64{}, nil
	}

	raw := make(map[int]float64, len(entries))
	for _, e := range entries {
		raw[e.ID] = 0
	}

	revealed, err := s.voteRepo.ListRevealedByContest(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}
	for _, v := range revealed {
		if _, live := raw[v.EntryID]; !live {
			continue // голос за отозванную/дисквалифицированную работу
		}
		if v.Direction == models.VoteUp {
			raw[v.EntryID]++
		} else {
			raw[v.EntryID]--
		}
	}

	normalized := scoring.MinMax(raw)

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		for entryID, score := range normalized {
			if err := s.scoreRepo.UpsertCommunity(ctx, exec, contestID, entryID, score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "community tally computed",
		slog.Int("contest_id", contestID),
		slog.Int("entries", len(entries)),
		slog.Int("revealed_votes", len(revealed)),
	)
	return normalized, nil
}
