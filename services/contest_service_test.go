package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/phase"
)

func validCreateInput() CreateContestInput {
	return CreateContestInput{
		Title:            "Autumn design sprint",
		Category:         models.CategoryDesign,
		WinnersCount:     3,
		BallotStyle:      models.BallotNumeric,
		StartDate:        testStart,
		SubmissionSecs:   int64((24 * time.Hour).Seconds()),
		ScoringSecs:      int64((6 * time.Hour).Seconds()),
		DisputesSecs:     int64((12 * time.Hour).Seconds()),
		VotingSecs:       int64((9 * time.Hour).Seconds()),
		JudgingSecs:      int64((24 * time.Hour).Seconds()),
		FinalizationSecs: int64((3 * time.Hour).Seconds()),
	}
}

func TestCreateContest(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)

	contest, err := env.contestSvc.CreateContest(context.Background(), organizer.ID, validCreateInput())
	require.NoError(t, err)
	assert.NotZero(t, contest.ID)
	assert.Equal(t, organizer.ID, contest.OrganizerID)
	assert.Equal(t, models.PhaseSubmission, contest.Phase)
	require.NotNil(t, contest.PhaseDeadline)
	assert.Equal(t, testStart.Add(24*time.Hour), *contest.PhaseDeadline)
}

func TestCreateContestRejectsNonOrganizer(t *testing.T) {
	env := newTestEnv(t)
	participant := env.users.addUser(models.RoleParticipant)

	_, err := env.contestSvc.CreateContest(context.Background(), participant.ID, validCreateInput())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateContestConfigurationErrors(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)

	cases := []struct {
		name   string
		mutate func(*CreateContestInput)
		want   error
	}{
		{"empty title", func(in *CreateContestInput) { in.Title = "" }, ErrContestTitleRequired},
		{"zero start date", func(in *CreateContestInput) { in.StartDate = time.Time{} }, ErrContestInvalidStartDate},
		{"negative capacity", func(in *CreateContestInput) { in.MaxSubmissions = -1 }, ErrContestInvalidCapacity},
		{"unknown ballot style", func(in *CreateContestInput) { in.BallotStyle = "hybrid" }, ErrContestInvalidBallotStyle},
		{"zero submission phase", func(in *CreateContestInput) { in.SubmissionSecs = 0 }, ErrContestInvalidSchedule},
		{"negative phase duration", func(in *CreateContestInput) { in.VotingSecs = -1 }, ErrContestInvalidSchedule},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validCreateInput()
			tc.mutate(&in)
			_, err := env.contestSvc.CreateContest(context.Background(), organizer.ID, in)
			require.ErrorIs(t, err, tc.want)
			// Ошибки конфигурации фатальны для конкурса, не для движка.
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	in := validCreateInput()
	in.Category = "cooking"
	_, err := env.contestSvc.CreateContest(context.Background(), organizer.ID, in)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCreateContestTitleConflictPerOrganizer(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	other := env.users.addUser(models.RoleOrganizer)

	_, err := env.contestSvc.CreateContest(context.Background(), organizer.ID, validCreateInput())
	require.NoError(t, err)

	_, err = env.contestSvc.CreateContest(context.Background(), organizer.ID, validCreateInput())
	assert.ErrorIs(t, err, ErrContestTitleConflict)

	// У другого организатора то же название допустимо.
	_, err = env.contestSvc.CreateContest(context.Background(), other.ID, validCreateInput())
	assert.NoError(t, err)
}

func TestRequestTransitionEarlyCut(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	contest := env.addContest(models.BallotNumeric, organizer.ID)

	// Через 10 часов submission организатор закрывает приём досрочно.
	env.clock.Set(testStart.Add(10 * time.Hour))
	err := env.contestSvc.RequestTransition(context.Background(), contest.ID, organizer.ID, models.PhaseScoring, "enough entries collected", 0)
	require.NoError(t, err)

	updated, err := env.contests.GetByID(context.Background(), nil, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Hour, updated.Schedule.Submission)
	assert.Equal(t, models.PhaseScoring, phase.Current(updated, env.clock.Now()))

	overrides, err := env.contestSvc.ListOverrides(context.Background(), contest.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, organizer.ID, overrides[0].ActorID)
	assert.Equal(t, models.PhaseSubmission, overrides[0].FromPhase)
	assert.Equal(t, models.PhaseScoring, overrides[0].ToPhase)
	assert.Equal(t, "enough entries collected", overrides[0].Reason)
}

func TestRequestTransitionExtendCurrentPhase(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	contest := env.addContest(models.BallotNumeric, organizer.ID)

	env.clock.Set(testStart.Add(time.Hour))
	err := env.contestSvc.RequestTransition(context.Background(), contest.ID, organizer.ID, models.PhaseSubmission, "authors asked for more time", 12*time.Hour)
	require.NoError(t, err)

	updated, err := env.contests.GetByID(context.Background(), nil, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, updated.Schedule.Submission)

	// Сдвиг расписания двигает все последующие границы.
	assert.Equal(t, testStart.Add(36*time.Hour), phase.StartOf(updated, models.PhaseScoring))
}

func TestRequestTransitionRejected(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	stranger := env.users.addUser(models.RoleOrganizer)
	contest := env.addContest(models.BallotNumeric, organizer.ID)

	ctx := context.Background()

	err := env.contestSvc.RequestTransition(ctx, contest.ID, organizer.ID, models.PhaseScoring, "", 0)
	assert.ErrorIs(t, err, ErrValidationFailed, "reason is mandatory")

	err = env.contestSvc.RequestTransition(ctx, contest.ID, stranger.ID, models.PhaseScoring, "not my contest", 0)
	assert.ErrorIs(t, err, ErrForbidden)

	err = env.contestSvc.RequestTransition(ctx, contest.ID, organizer.ID, models.PhaseVoting, "skipping ahead", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	env.enterPhase(contest, models.PhaseVoting)
	err = env.contestSvc.RequestTransition(ctx, contest.ID, organizer.ID, models.PhaseScoring, "going back", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	env.enterPhase(contest, models.PhaseCompleted)
	err = env.contestSvc.RequestTransition(ctx, contest.ID, organizer.ID, models.PhaseCompleted, "poke", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEffectivePhaseEmptyContestCompletes(t *testing.T) {
	env := newTestEnv(t)
	organizer := env.users.addUser(models.RoleOrganizer)
	contest := env.addContest(models.BallotNumeric, organizer.ID)

	ctx := context.Background()

	// Во время приёма пустой конкурс ещё жив.
	got, err := env.contestSvc.EffectivePhase(ctx, contest)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSubmission, got)

	// Приём закрыт, живых работ нет: "нет контента — нет конкурса".
	env.enterPhase(contest, models.PhaseVoting)
	got, err = env.contestSvc.EffectivePhase(ctx, contest)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCompleted, got)

	// С живой работой фаза остаётся расчётной.
	author := env.users.addUser(models.RoleParticipant)
	env.entries.addEntry(contest.ID, author.ID, testStart.Add(time.Hour))
	got, err = env.contestSvc.EffectivePhase(ctx, contest)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseVoting, got)
}
