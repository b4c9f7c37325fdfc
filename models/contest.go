package models

import "time"

// ContestPhase представляет фазы жизненного цикла конкурса, соответствующие ENUM в БД.
// Текущая фаза не хранится как авторитетное состояние — она вычисляется
// по start_date и длительностям фаз (см. пакет phase).
type ContestPhase string

const (
	PhaseSubmission   ContestPhase = "submission"
	PhaseScoring      ContestPhase = "scoring"
	PhaseDisputes     ContestPhase = "disputes"
	PhaseVoting       ContestPhase = "voting"
	PhaseJudging      ContestPhase = "judging"
	PhaseFinalization ContestPhase = "finalization"
	PhaseCompleted    ContestPhase = "completed"
)

// ContestCategory — категория конкурса.
type ContestCategory string

const (
	CategoryContent  ContestCategory = "content"
	CategoryDesign   ContestCategory = "design"
	CategoryDev      ContestCategory = "dev"
	CategoryResearch ContestCategory = "research"
	CategoryOther    ContestCategory = "other"
)

// BallotStyle определяет, как судьи оценивают работы в рамках одного конкурса.
// Смешивать стили внутри конкурса нельзя, стиль фиксируется при создании.
type BallotStyle string

const (
	BallotNumeric BallotStyle = "numeric"
	BallotRanking BallotStyle = "ranking"
)

// PhaseSchedule хранит длительности фаз. Нулевая длительность означает,
// что фаза пропускается. Сумма длительностей определяет момент завершения.
type PhaseSchedule struct {
	Submission   time.Duration `json:"submission"`
	Scoring      time.Duration `json:"scoring"`
	Disputes     time.Duration `json:"disputes"`
	Voting       time.Duration `json:"voting"`
	Judging      time.Duration `json:"judging"`
	Finalization time.Duration `json:"finalization"`
}

// Contest представляет конкурс.
type Contest struct {
	ID             int             `json:"id" db:"id"`
	Title          string          `json:"title" db:"title"`
	Description    *string         `json:"description,omitempty" db:"description"`
	Category       ContestCategory `json:"category" db:"category"`
	OrganizerID    int             `json:"organizer_id" db:"organizer_id"`
	PrizeAmount    int64           `json:"prize_amount" db:"prize_amount"`
	Currency       string          `json:"currency" db:"currency"`
	WinnersCount   int             `json:"winners_count" db:"winners_count"`
	MaxSubmissions int             `json:"max_submissions" db:"max_submissions"` // 0 = без лимита
	BallotStyle    BallotStyle     `json:"ballot_style" db:"ballot_style"`
	StartDate      time.Time       `json:"start_date" db:"start_date"`
	Schedule       PhaseSchedule   `json:"schedule"`
	FinalizedAt    *time.Time      `json:"finalized_at,omitempty" db:"finalized_at"`
	// LastObservedPhase — последняя фаза, зафиксированная планировщиком.
	// Служит только для обнаружения пересечения границ, не для чтения фазы.
	LastObservedPhase ContestPhase `json:"-" db:"last_observed_phase"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`

	// Производные поля (не мапятся напрямую)
	Phase         ContestPhase `json:"phase,omitempty" db:"-"`
	PhaseDeadline *time.Time   `json:"phase_deadline,omitempty" db:"-"`
	EntriesCount  int          `json:"entries_count" db:"-"`
	Organizer     *User        `json:"organizer,omitempty" db:"-"`
}

// PhaseOverride — журнальная запись ручного перевода фазы организатором
// (ранний переход или продление). Единственный способ сдвинуть расписание.
type PhaseOverride struct {
	ID         int           `json:"id" db:"id"`
	ContestID  int           `json:"contest_id" db:"contest_id"`
	ActorID    int           `json:"actor_id" db:"actor_id"`
	FromPhase  ContestPhase  `json:"from_phase" db:"from_phase"`
	ToPhase    ContestPhase  `json:"to_phase" db:"to_phase"`
	ExtendedBy time.Duration `json:"extended_by,omitempty" db:"extended_by"`
	Reason     string        `json:"reason" db:"reason"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}
