package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranqly/contest-engine/models"
)

func TestSetAlgorithmicScore(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	admin := env.users.addUser(models.RoleAdmin)
	author := env.users.addUser(models.RoleParticipant)
	contest := env.addContest(models.BallotNumeric, organizer.ID)
	entry := env.entries.addEntry(contest.ID, author.ID, testStart.Add(time.Hour))
	foreign := env.entries.addEntry(env.addContest(models.BallotNumeric, organizer.ID).ID, author.ID, testStart)
	ctx := context.Background()

	// Фаза scoring ещё не началась.
	err := env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entry.ID, admin.ID, 80)
	assert.ErrorIs(t, err, ErrPhaseClosed)

	env.enterPhase(contest, models.PhaseScoring)

	err = env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entry.ID, organizer.ID, 80)
	assert.ErrorIs(t, err, ErrForbidden, "only the scorer account writes algorithmic scores")

	err = env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entry.ID, admin.ID, 101)
	assert.ErrorIs(t, err, ErrValidationFailed)

	err = env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, foreign.ID, admin.ID, 80)
	assert.ErrorIs(t, err, ErrEntryNotFound, "entry must belong to the contest")

	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entry.ID, admin.ID, 80))

	// Повторная запись заменяет предыдущую.
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entry.ID, admin.ID, 85))
	rec, err := env.scores.GetByEntry(ctx, nil, contest.ID, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.Algorithmic)
	assert.InDelta(t, 85, *rec.Algorithmic, 1e-9)

	require.NoError(t, env.contests.MarkFinalized(ctx, nil, contest.ID, env.clock.Now()))
	err = env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entry.ID, admin.ID, 90)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

// Сквозной сценарий: три работы, два судьи с ранжированием, без
// раскрытых голосов (community — общая ничья 50), алгоритмические
// 80/60/40. Ожидаемые итоги: 77 / 69 / 31.
func TestFinalizeEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	admin := env.users.addUser(models.RoleAdmin)
	contest, entries, judges := setupJudgingContest(t, env, models.BallotRanking, 3, 2)
	ctx := context.Background()
	e1, e2, e3 := entries[0].ID, entries[1].ID, entries[2].ID

	_, err := env.judgeSvc.SubmitBallot(ctx, contest.ID, judges[0].ID, BallotInput{Ranking: []int{e1, e2, e3}})
	require.NoError(t, err)
	_, err = env.judgeSvc.SubmitBallot(ctx, contest.ID, judges[1].ID, BallotInput{Ranking: []int{e2, e1, e3}})
	require.NoError(t, err)

	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, e1, admin.ID, 80))
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, e2, admin.ID, 60))
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, e3, admin.ID, 40))

	env.enterPhase(contest, models.PhaseFinalization)
	ranking, err := env.resultSvc.Finalize(ctx, contest.ID)
	require.NoError(t, err)
	require.Len(t, ranking.Items, 3)

	// Судейские 100/100/0, community все 50:
	// e1: 0.4*80 + 0.3*50 + 0.3*100 = 77
	// e2: 0.4*60 + 0.3*50 + 0.3*100 = 69
	// e3: 0.4*40 + 0.3*50 + 0.3*0   = 31
	assert.Equal(t, e1, ranking.Items[0].EntryID)
	assert.Equal(t, 77, ranking.Items[0].Final)
	assert.Equal(t, e2, ranking.Items[1].EntryID)
	assert.Equal(t, 69, ranking.Items[1].Final)
	assert.Equal(t, e3, ranking.Items[2].EntryID)
	assert.Equal(t, 31, ranking.Items[2].Final)

	updated, err := env.contests.GetByID(ctx, nil, contest.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.FinalizedAt)

	first, err := env.entries.GetByID(ctx, nil, e1)
	require.NoError(t, err)
	require.NotNil(t, first.FinalRank)
	assert.Equal(t, 1, *first.FinalRank)

	rec, err := env.scores.GetByEntry(ctx, nil, contest.ID, e1)
	require.NoError(t, err)
	require.NotNil(t, rec.Final)
	assert.Equal(t, 77, *rec.Final)
	assert.NotNil(t, rec.FrozenAt)

	assert.Contains(t, env.hub.typesFor(contest.ID), MsgContestFinalized)

	// Повторная финализация невозможна.
	_, err = env.resultSvc.Finalize(ctx, contest.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	// Замороженный рейтинг читается обратно в том же порядке.
	got, err := env.resultSvc.GetRanking(ctx, contest.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.Equal(t, ranking.Items[0].EntryID, got.Items[0].EntryID)
	assert.Equal(t, ranking.Items[0].Final, got.Items[0].Final)
}

func TestFinalizeDuringVotingIsNotReady(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	author := env.users.addUser(models.RoleParticipant)
	contest := env.addContest(models.BallotNumeric, organizer.ID)
	env.entries.addEntry(contest.ID, author.ID, testStart.Add(time.Hour))

	env.enterPhase(contest, models.PhaseVoting)
	_, err := env.resultSvc.Finalize(context.Background(), contest.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	updated, err := env.contests.GetByID(context.Background(), nil, contest.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.FinalizedAt)
}

func TestFinalizePostponedWithoutAlgorithmicScores(t *testing.T) {
	env := newTestEnv(t)
	admin := env.users.addUser(models.RoleAdmin)
	contest, entries, _ := setupJudgingContest(t, env, models.BallotNumeric, 2, 0)
	ctx := context.Background()

	// Оценка есть только у первой работы.
	env.enterPhase(contest, models.PhaseScoring)
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entries[0].ID, admin.ID, 70))

	env.enterPhase(contest, models.PhaseFinalization)
	_, err := env.resultSvc.Finalize(ctx, contest.ID)
	assert.ErrorIs(t, err, ErrMissingAlgorithmicScore)

	updated, err := env.contests.GetByID(ctx, nil, contest.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.FinalizedAt, "postponed finalization leaves the contest open")

	// После дозаписи оценки финализация проходит.
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entries[1].ID, admin.ID, 40))
	_, err = env.resultSvc.Finalize(ctx, contest.ID)
	assert.NoError(t, err)
}

func TestFinalizeWithoutJudgesRedistributesWeights(t *testing.T) {
	env := newTestEnv(t)
	admin := env.users.addUser(models.RoleAdmin)
	contest, entries, _ := setupJudgingContest(t, env, models.BallotNumeric, 2, 0)
	ctx := context.Background()
	e1, e2 := entries[0].ID, entries[1].ID

	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, e1, admin.ID, 100))
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, e2, admin.ID, 30))

	env.enterPhase(contest, models.PhaseFinalization)
	ranking, err := env.resultSvc.Finalize(ctx, contest.ID)
	require.NoError(t, err)
	require.Len(t, ranking.Items, 2)

	// Community — ничья (50). Веса без судей: 4/7 и 3/7.
	// e1: round(100*4/7 + 50*3/7) = 79; e2: round(30*4/7 + 50*3/7) = 39.
	assert.Equal(t, e1, ranking.Items[0].EntryID)
	assert.Equal(t, 79, ranking.Items[0].Final)
	assert.Equal(t, 39, ranking.Items[1].Final)
}

func TestFinalizeEmptyContest(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	contest := env.addContest(models.BallotNumeric, organizer.ID)

	env.enterPhase(contest, models.PhaseFinalization)
	ranking, err := env.resultSvc.Finalize(context.Background(), contest.ID)
	require.NoError(t, err)
	assert.Empty(t, ranking.Items)

	updated, err := env.contests.GetByID(context.Background(), nil, contest.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.FinalizedAt)
}

func TestFinalizeExcludesDisqualifiedEntries(t *testing.T) {
	env := newTestEnv(t)
	admin := env.users.addUser(models.RoleAdmin)
	contest, entries, _ := setupJudgingContest(t, env, models.BallotNumeric, 3, 0)
	ctx := context.Background()

	require.NoError(t, env.entries.UpdateStatus(ctx, nil, entries[2].ID, models.EntryStatusDisqualified, nil))
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entries[0].ID, admin.ID, 90))
	require.NoError(t, env.resultSvc.SetAlgorithmicScore(ctx, contest.ID, entries[1].ID, admin.ID, 50))

	env.enterPhase(contest, models.PhaseFinalization)
	ranking, err := env.resultSvc.Finalize(ctx, contest.ID)
	require.NoError(t, err)
	require.Len(t, ranking.Items, 2)
	for _, item := range ranking.Items {
		assert.NotEqual(t, entries[2].ID, item.EntryID)
	}

	dq, err := env.entries.GetByID(ctx, nil, entries[2].ID)
	require.NoError(t, err)
	assert.Nil(t, dq.FinalRank)
}

func TestGetRankingBeforeFinalizeIsNotReady(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	contest := env.addContest(models.BallotNumeric, organizer.ID)

	_, err := env.resultSvc.GetRanking(context.Background(), contest.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}
