package models

import "time"

// EntryStatus — статус работы в конкурсе.
type EntryStatus string

const (
	EntryStatusPending      EntryStatus = "pending"
	EntryStatusWithdrawn    EntryStatus = "withdrawn"
	EntryStatusDisqualified EntryStatus = "disqualified"
)

// IsLive reports whether the entry still participates in voting, judging
// and ranking. Withdrawn and disqualified entries stay in storage (and in
// the audit pack) but are excluded from all scoring inputs.
func (s EntryStatus) IsLive() bool {
	return s == EntryStatusPending
}

// Entry представляет работу, поданную автором в конкурс.
// Редактируется только автором и только пока конкурс в фазе submission.
type Entry struct {
	ID               int         `json:"id" db:"id"`
	ContestID        int         `json:"contest_id" db:"contest_id"`
	AuthorID         int         `json:"author_id" db:"author_id"`
	Title            string      `json:"title" db:"title"`
	WorkURL          string      `json:"work_url" db:"work_url"`
	Description      string      `json:"description" db:"description"`
	Status           EntryStatus `json:"status" db:"status"`
	DisqualifyReason *string     `json:"disqualify_reason,omitempty" db:"disqualify_reason"`
	SubmittedAt      time.Time   `json:"submitted_at" db:"submitted_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
	FinalRank        *int        `json:"final_rank,omitempty" db:"final_rank"`
}

// EntryEventAction — вид события в журнале работ.
type EntryEventAction string

const (
	EntryEventSubmitted    EntryEventAction = "submitted"
	EntryEventEdited       EntryEventAction = "edited"
	EntryEventWithdrawn    EntryEventAction = "withdrawn"
	EntryEventDisqualified EntryEventAction = "disqualified"
)

// EntryEvent — неизменяемая запись "кто/что/когда" для каждой успешной
// мутации работы. Журнал только дописывается и целиком входит в audit pack.
type EntryEvent struct {
	ID        int              `json:"id" db:"id"`
	ContestID int              `json:"contest_id" db:"contest_id"`
	EntryID   int              `json:"entry_id" db:"entry_id"`
	ActorID   int              `json:"actor_id" db:"actor_id"`
	Action    EntryEventAction `json:"action" db:"action"`
	Detail    *string          `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
