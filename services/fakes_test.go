package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/phase"
	"github.com/ranqly/contest-engine/repositories"
	"github.com/ranqly/contest-engine/storage"
)

// Тестовые двойники репозиториев: потокобезопасные in-memory реализации
// с той же семантикой ошибок, что и postgres-версии.

type fakeTxRunner struct{}

func (fakeTxRunner) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type broadcastCall struct {
	ContestID int
	Type      string
	Payload   interface{}
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *fakeBroadcaster) BroadcastToContest(contestID int, messageType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{ContestID: contestID, Type: messageType, Payload: payload})
}

func (b *fakeBroadcaster) typesFor(contestID int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		if c.ContestID == contestID {
			out = append(out, c.Type)
		}
	}
	return out
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int]*models.User)}
}

func (r *fakeUserRepo) addUser(role models.UserRole) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &models.User{
		ID:          r.nextID,
		Email:       "user" + strconv.Itoa(r.nextID) + "@example.com",
		DisplayName: "user" + strconv.Itoa(r.nextID),
		Role:        role,
		CreatedAt:   time.Now(),
	}
	r.users[u.ID] = u
	r.nextID++
	return u
}

func (r *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	u.ID = r.nextID
	r.nextID++
	u.CreatedAt = time.Now()
	clone := *u
	r.users[u.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

type fakeContestRepo struct {
	mu        sync.Mutex
	nextID    int
	contests  map[int]*models.Contest
	overrides []models.PhaseOverride
}

func newFakeContestRepo() *fakeContestRepo {
	return &fakeContestRepo{nextID: 1, contests: make(map[int]*models.Contest)}
}

func (r *fakeContestRepo) addContest(c *models.Contest) *models.Contest {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID
	r.nextID++
	if c.LastObservedPhase == "" {
		c.LastObservedPhase = models.PhaseSubmission
	}
	clone := *c
	r.contests[c.ID] = &clone
	return c
}

func (r *fakeContestRepo) Create(ctx context.Context, c *models.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contests {
		if existing.OrganizerID == c.OrganizerID && existing.Title == c.Title {
			return repositories.ErrContestTitleConflict
		}
	}
	c.ID = r.nextID
	r.nextID++
	c.CreatedAt = time.Now()
	c.LastObservedPhase = models.PhaseSubmission
	clone := *c
	r.contests[c.ID] = &clone
	return nil
}

func (r *fakeContestRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return nil, repositories.ErrContestNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *fakeContestRepo) List(ctx context.Context, filter repositories.ListContestsFilter) ([]models.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Contest
	for _, c := range r.contests {
		if filter.Category != nil && c.Category != *filter.Category {
			continue
		}
		if filter.OrganizerID != nil && c.OrganizerID != *filter.OrganizerID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeContestRepo) ListUnfinished(ctx context.Context) ([]models.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Contest
	for _, c := range r.contests {
		if c.FinalizedAt == nil {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeContestRepo) UpdateSchedule(ctx context.Context, exec repositories.SQLExecutor, id int, start time.Time, schedule models.PhaseSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return repositories.ErrContestNotFound
	}
	c.StartDate = start
	c.Schedule = schedule
	return nil
}

func (r *fakeContestRepo) UpdateLastObservedPhase(ctx context.Context, exec repositories.SQLExecutor, id int, phase models.ContestPhase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return repositories.ErrContestNotFound
	}
	c.LastObservedPhase = phase
	return nil
}

func (r *fakeContestRepo) MarkFinalized(ctx context.Context, exec repositories.SQLExecutor, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return repositories.ErrContestNotFound
	}
	if c.FinalizedAt != nil {
		return repositories.ErrContestAlreadyFinalized
	}
	c.FinalizedAt = &at
	return nil
}

func (r *fakeContestRepo) LogOverride(ctx context.Context, exec repositories.SQLExecutor, override *models.PhaseOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	override.ID = len(r.overrides) + 1
	override.CreatedAt = time.Now()
	r.overrides = append(r.overrides, *override)
	return nil
}

func (r *fakeContestRepo) ListOverrides(ctx context.Context, contestID int) ([]models.PhaseOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PhaseOverride
	for _, o := range r.overrides {
		if o.ContestID == contestID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeEntryRepo struct {
	mu      sync.Mutex
	nextID  int
	entries map[int]*models.Entry
	events  []models.EntryEvent
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{nextID: 1, entries: make(map[int]*models.Entry)}
}

func (r *fakeEntryRepo) addEntry(contestID, authorID int, submittedAt time.Time) *models.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &models.Entry{
		ID:          r.nextID,
		ContestID:   contestID,
		AuthorID:    authorID,
		Title:       "entry " + strconv.Itoa(r.nextID),
		WorkURL:     "https://example.com/work/" + strconv.Itoa(r.nextID),
		Description: "a sufficiently long description of this work",
		Status:      models.EntryStatusPending,
		SubmittedAt: submittedAt,
	}
	r.nextID++
	clone := *e
	r.entries[e.ID] = &clone
	return e
}

func (r *fakeEntryRepo) Create(ctx context.Context, exec repositories.SQLExecutor, e *models.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.nextID
	r.nextID++
	e.SubmittedAt = time.Now()
	e.UpdatedAt = e.SubmittedAt
	clone := *e
	r.entries[e.ID] = &clone
	return nil
}

func (r *fakeEntryRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, repositories.ErrEntryNotFound
	}
	clone := *e
	return &clone, nil
}

func (r *fakeEntryRepo) ListByContest(ctx context.Context, exec repositories.SQLExecutor, contestID int, onlyLive bool) ([]models.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Entry
	for _, e := range r.entries {
		if e.ContestID != contestID {
			continue
		}
		if onlyLive && !e.Status.IsLive() {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeEntryRepo) ListByAuthor(ctx context.Context, authorID int) ([]models.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Entry
	for _, e := range r.entries {
		if e.AuthorID == authorID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeEntryRepo) CountLive(ctx context.Context, exec repositories.SQLExecutor, contestID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.ContestID == contestID && e.Status.IsLive() {
			count++
		}
	}
	return count, nil
}

func (r *fakeEntryRepo) UpdateContent(ctx context.Context, exec repositories.SQLExecutor, entry *models.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entry.ID]
	if !ok {
		return repositories.ErrEntryNotFound
	}
	e.Title = entry.Title
	e.WorkURL = entry.WorkURL
	e.Description = entry.Description
	e.UpdatedAt = time.Now()
	return nil
}

func (r *fakeEntryRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.EntryStatus, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return repositories.ErrEntryNotFound
	}
	e.Status = status
	e.DisqualifyReason = reason
	return nil
}

func (r *fakeEntryRepo) UpdateFinalRank(ctx context.Context, exec repositories.SQLExecutor, id int, rank *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return repositories.ErrEntryNotFound
	}
	e.FinalRank = rank
	return nil
}

func (r *fakeEntryRepo) AppendEvent(ctx context.Context, exec repositories.SQLExecutor, event *models.EntryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = len(r.events) + 1
	event.CreatedAt = time.Now()
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeEntryRepo) ListEvents(ctx context.Context, contestID int) ([]models.EntryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EntryEvent
	for _, ev := range r.events {
		if ev.ContestID == contestID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type voteKey struct{ contestID, entryID, voterID int }

type fakeVoteRepo struct {
	mu      sync.Mutex
	nextID  int
	creds   map[[2]int]*models.VoterCredential
	commits map[voteKey]*models.VoteCommit
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{
		nextID:  1,
		creds:   make(map[[2]int]*models.VoterCredential),
		commits: make(map[voteKey]*models.VoteCommit),
	}
}

func (r *fakeVoteRepo) MintCredential(ctx context.Context, cred *models.VoterCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int{cred.ContestID, cred.VoterID}
	if _, ok := r.creds[key]; ok {
		return repositories.ErrCredentialConflict
	}
	cred.ID = r.nextID
	r.nextID++
	cred.MintedAt = time.Now()
	clone := *cred
	r.creds[key] = &clone
	return nil
}

func (r *fakeVoteRepo) GetCredential(ctx context.Context, exec repositories.SQLExecutor, contestID, voterID int) (*models.VoterCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[[2]int{contestID, voterID}]
	if !ok {
		return nil, repositories.ErrCredentialNotFound
	}
	clone := *cred
	return &clone, nil
}

func (r *fakeVoteRepo) LockCredential(ctx context.Context, exec repositories.SQLExecutor, contestID, voterID int) (*models.VoterCredential, error) {
	return r.GetCredential(ctx, exec, contestID, voterID)
}

func (r *fakeVoteRepo) CountCommitsByDirection(ctx context.Context, exec repositories.SQLExecutor, contestID, voterID int, direction models.VoteDirection) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key, c := range r.commits {
		if key.contestID == contestID && key.voterID == voterID && c.Direction == direction {
			count++
		}
	}
	return count, nil
}

func (r *fakeVoteRepo) GetCommit(ctx context.Context, exec repositories.SQLExecutor, contestID, entryID, voterID int) (*models.VoteCommit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commits[voteKey{contestID, entryID, voterID}]
	if !ok {
		return nil, repositories.ErrVoteCommitNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *fakeVoteRepo) UpsertCommit(ctx context.Context, exec repositories.SQLExecutor, commit *models.VoteCommit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := voteKey{commit.ContestID, commit.EntryID, commit.VoterID}
	if prev, ok := r.commits[key]; ok {
		commit.ID = prev.ID
	} else {
		commit.ID = r.nextID
		r.nextID++
	}
	commit.CommittedAt = time.Now()
	commit.Revealed = false
	commit.Justification = nil
	commit.RevealedAt = nil
	clone := *commit
	r.commits[key] = &clone
	return nil
}

func (r *fakeVoteRepo) MarkRevealed(ctx context.Context, exec repositories.SQLExecutor, commitID int, justification string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commits {
		if c.ID == commitID {
			c.Revealed = true
			c.Justification = &justification
			c.RevealedAt = &at
			return nil
		}
	}
	return repositories.ErrVoteCommitNotFound
}

func (r *fakeVoteRepo) ListRevealedByContest(ctx context.Context, exec repositories.SQLExecutor, contestID int) ([]models.VoteCommit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.VoteCommit
	for key, c := range r.commits {
		if key.contestID == contestID && c.Revealed {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeBallotRepo struct {
	mu      sync.Mutex
	nextID  int
	roster  map[[2]int]bool // (contestID, judgeID)
	ballots map[[2]int]*models.JudgeBallot
}

func newFakeBallotRepo() *fakeBallotRepo {
	return &fakeBallotRepo{
		nextID:  1,
		roster:  make(map[[2]int]bool),
		ballots: make(map[[2]int]*models.JudgeBallot),
	}
}

func (r *fakeBallotRepo) AssignJudge(ctx context.Context, cj *models.ContestJudge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int{cj.ContestID, cj.JudgeID}
	if r.roster[key] {
		return repositories.ErrJudgeAlreadyAssigned
	}
	r.roster[key] = true
	return nil
}

func (r *fakeBallotRepo) IsJudgeAssigned(ctx context.Context, exec repositories.SQLExecutor, contestID, judgeID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roster[[2]int{contestID, judgeID}], nil
}

func (r *fakeBallotRepo) CountJudges(ctx context.Context, exec repositories.SQLExecutor, contestID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key := range r.roster {
		if key[0] == contestID {
			count++
		}
	}
	return count, nil
}

func (r *fakeBallotRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, ballot *models.JudgeBallot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int{ballot.ContestID, ballot.JudgeID}
	if prev, ok := r.ballots[key]; ok {
		ballot.ID = prev.ID
		ballot.SubmittedAt = prev.SubmittedAt
	} else {
		ballot.ID = r.nextID
		r.nextID++
		ballot.SubmittedAt = time.Now()
	}
	ballot.UpdatedAt = time.Now()
	clone := *ballot
	r.ballots[key] = &clone
	return nil
}

func (r *fakeBallotRepo) ListByContest(ctx context.Context, exec repositories.SQLExecutor, contestID int) ([]models.JudgeBallot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.JudgeBallot
	for key, b := range r.ballots {
		if key[0] == contestID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JudgeID < out[j].JudgeID })
	return out, nil
}

type fakeScoreRepo struct {
	mu      sync.Mutex
	nextID  int
	records map[[2]int]*models.ScoreRecord // (contestID, entryID)
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{nextID: 1, records: make(map[[2]int]*models.ScoreRecord)}
}

func (r *fakeScoreRepo) record(contestID, entryID int) *models.ScoreRecord {
	key := [2]int{contestID, entryID}
	rec, ok := r.records[key]
	if !ok {
		rec = &models.ScoreRecord{ID: r.nextID, ContestID: contestID, EntryID: entryID}
		r.nextID++
		r.records[key] = rec
	}
	return rec
}

func (r *fakeScoreRepo) UpsertAlgorithmic(ctx context.Context, exec repositories.SQLExecutor, contestID, entryID int, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(contestID, entryID).Algorithmic = &score
	return nil
}

func (r *fakeScoreRepo) UpsertCommunity(ctx context.Context, exec repositories.SQLExecutor, contestID, entryID int, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(contestID, entryID).Community = &score
	return nil
}

func (r *fakeScoreRepo) UpsertJudge(ctx context.Context, exec repositories.SQLExecutor, contestID, entryID int, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(contestID, entryID).Judge = &score
	return nil
}

func (r *fakeScoreRepo) SetFinal(ctx context.Context, exec repositories.SQLExecutor, contestID, entryID, final int, frozenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[[2]int{contestID, entryID}]
	if !ok {
		return repositories.ErrScoreRecordNotFound
	}
	rec.Final = &final
	rec.FrozenAt = &frozenAt
	return nil
}

func (r *fakeScoreRepo) GetByEntry(ctx context.Context, exec repositories.SQLExecutor, contestID, entryID int) (*models.ScoreRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[[2]int{contestID, entryID}]
	if !ok {
		return nil, repositories.ErrScoreRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *fakeScoreRepo) ListByContest(ctx context.Context, exec repositories.SQLExecutor, contestID int) ([]models.ScoreRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ScoreRecord
	for key, rec := range r.records {
		if key[0] == contestID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

type fakeAuditRepo struct {
	mu    sync.Mutex
	packs map[int]*models.AuditPack
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{packs: make(map[int]*models.AuditPack)}
}

func (r *fakeAuditRepo) Create(ctx context.Context, p *models.AuditPack) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.packs[p.ContestID]; ok {
		return repositories.ErrAuditPackConflict
	}
	p.CreatedAt = time.Now()
	clone := *p
	r.packs[p.ContestID] = &clone
	return nil
}

func (r *fakeAuditRepo) GetByContest(ctx context.Context, contestID int) (*models.AuditPack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.packs[contestID]
	if !ok {
		return nil, repositories.ErrAuditPackNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakeAuditRepo) UpdateAnchorStatus(ctx context.Context, packID string, status models.AnchorStatus, receipt *string, anchoredAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.packs {
		if p.ID == packID {
			p.AnchorStatus = status
			p.AnchorReceipt = receipt
			p.AnchoredAt = anchoredAt
			return nil
		}
	}
	return repositories.ErrAuditPackNotFound
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(ctx context.Context, key, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = payload
	return &storage.UploadResult{Key: key, Location: "https://cdn.example.com/" + key}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type fakeAnchorer struct {
	mu    sync.Mutex
	err   error
	calls int
	done  chan struct{}
}

func newFakeAnchorer(err error) *fakeAnchorer {
	return &fakeAnchorer{err: err, done: make(chan struct{}, 16)}
}

func (a *fakeAnchorer) Anchor(ctx context.Context, contestID int, contentHash string) (string, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	a.done <- struct{}{}
	if a.err != nil {
		return "", a.err
	}
	return "receipt-" + contentHash[:8], nil
}

// Управляемые часы: все сервисы в тестах читают время отсюда.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var testStart = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// submission 24h, scoring 6h, disputes 12h, voting 9h (commit 6h + reveal 3h),
// judging 24h, finalization 3h.
func standardSchedule() models.PhaseSchedule {
	return models.PhaseSchedule{
		Submission:   24 * time.Hour,
		Scoring:      6 * time.Hour,
		Disputes:     12 * time.Hour,
		Voting:       9 * time.Hour,
		Judging:      24 * time.Hour,
		Finalization: 3 * time.Hour,
	}
}

type testEnv struct {
	users    *fakeUserRepo
	contests *fakeContestRepo
	entries  *fakeEntryRepo
	votes    *fakeVoteRepo
	ballots  *fakeBallotRepo
	scores   *fakeScoreRepo
	audits   *fakeAuditRepo
	hub      *fakeBroadcaster
	uploader *fakeUploader
	anchorer *fakeAnchorer
	clock    *fakeClock

	authSvc    *AuthService
	contestSvc *ContestService
	entrySvc   *EntryService
	voteSvc    *VoteService
	judgeSvc   *JudgeService
	resultSvc  *ResultService
	auditSvc   *AuditService
	watcher    *PhaseWatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    newFakeUserRepo(),
		contests: newFakeContestRepo(),
		entries:  newFakeEntryRepo(),
		votes:    newFakeVoteRepo(),
		ballots:  newFakeBallotRepo(),
		scores:   newFakeScoreRepo(),
		audits:   newFakeAuditRepo(),
		hub:      &fakeBroadcaster{},
		uploader: newFakeUploader(),
		anchorer: newFakeAnchorer(nil),
		clock:    newFakeClock(testStart),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tx := fakeTxRunner{}
	locks := NewContestLocks()

	env.authSvc = NewAuthService(env.users)
	env.contestSvc = NewContestService(tx, env.contests, env.entries, env.users, locks, env.hub, logger)
	env.entrySvc = NewEntryService(tx, env.entries, env.contests, env.users, locks, env.hub, logger)
	env.voteSvc = NewVoteService(tx, env.votes, env.entries, env.contests, env.scores, locks, logger)
	env.judgeSvc = NewJudgeService(tx, env.ballots, env.entries, env.contests, env.users, env.scores, locks, logger)
	env.resultSvc = NewResultService(tx, env.contests, env.entries, env.scores, env.users, env.voteSvc, env.judgeSvc, locks, env.hub, logger)
	env.auditSvc = NewAuditService(env.audits, env.contests, env.entries, env.votes, env.ballots, env.scores, env.uploader, env.anchorer, logger)
	env.watcher = NewPhaseWatcher(env.contests, env.voteSvc, env.judgeSvc, env.resultSvc, env.auditSvc, env.hub, logger)

	env.contestSvc.now = env.clock.Now
	env.entrySvc.now = env.clock.Now
	env.voteSvc.now = env.clock.Now
	env.judgeSvc.now = env.clock.Now
	env.resultSvc.now = env.clock.Now
	env.auditSvc.now = env.clock.Now
	env.watcher.now = env.clock.Now

	return env
}

func (env *testEnv) addContest(style models.BallotStyle, organizerID int) *models.Contest {
	return env.contests.addContest(&models.Contest{
		Title:        "Summer code jam",
		Category:     models.CategoryDev,
		OrganizerID:  organizerID,
		WinnersCount: 3,
		BallotStyle:  style,
		StartDate:    testStart,
		Schedule:     standardSchedule(),
	})
}

// enterPhase переводит часы на минуту после начала фазы.
func (env *testEnv) enterPhase(c *models.Contest, p models.ContestPhase) {
	env.clock.Set(phase.StartOf(c, p).Add(time.Minute))
}
