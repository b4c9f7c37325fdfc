package models

import "time"

// AnchorStatus — состояние якорения audit pack во внешнем он-чейн сервисе.
type AnchorStatus string

const (
	AnchorPending   AnchorStatus = "pending"
	AnchorConfirmed AnchorStatus = "confirmed"
	AnchorFailed    AnchorStatus = "failed"
)

// AuditPack — метаданные опубликованного пакета. Сам пакет (каноническая
// JSON-сериализация) лежит в объектном хранилище по ObjectKey; ContentHash
// считается по байтам пакета и якорится он-чейн. Пакет валиден и доступен
// для скачивания до подтверждения якоря.
type AuditPack struct {
	ID            string       `json:"id" db:"id"`
	ContestID     int          `json:"contest_id" db:"contest_id"`
	ContentHash   string       `json:"content_hash" db:"content_hash"`
	ObjectKey     string       `json:"object_key" db:"object_key"`
	PublicURL     string       `json:"public_url" db:"public_url"`
	AnchorStatus  AnchorStatus `json:"anchor_status" db:"anchor_status"`
	AnchorReceipt *string      `json:"anchor_receipt,omitempty" db:"anchor_receipt"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	AnchoredAt    *time.Time   `json:"anchored_at,omitempty" db:"anchored_at"`
}

// AuditBundle — содержимое пакета в каноническом виде. Все срезы
// отсортированы детерминированно (работы и записи журналов по id,
// голоса по (entry_id, псевдоним), бюллетени по judge_id), поэтому
// повторная сборка по тем же данным даёт байт-в-байт тот же JSON.
type AuditBundle struct {
	ContestID   int               `json:"contest_id"`
	Title       string            `json:"title"`
	FinalizedAt time.Time         `json:"finalized_at"`
	Entries     []Entry           `json:"entries"`
	Events      []EntryEvent      `json:"events"`
	Votes       []AuditVote       `json:"votes"`
	Ballots     []AuditBallot     `json:"ballots"`
	Scores      []ScoreRecord     `json:"scores"`
	Ranking     []RankingItem     `json:"ranking"`
	Overrides   []PhaseOverride   `json:"phase_overrides,omitempty"`
}

// AuditVote — раскрытый голос с псевдонимизированным голосующим.
// Нераскрытые коммиты в пакет не попадают.
type AuditVote struct {
	EntryID        int           `json:"entry_id"`
	Voter          string        `json:"voter"` // стабильный псевдоним, не сырой id
	Direction      VoteDirection `json:"direction"`
	Justification  string        `json:"justification"`
	CommitmentHash string        `json:"commitment_hash"`
	RevealedAt     time.Time     `json:"revealed_at"`
}

// AuditBallot — бюллетень судьи для пакета. Идентичность судьи
// раскрывается только здесь, после финализации.
type AuditBallot struct {
	JudgeID     int          `json:"judge_id"`
	Style       BallotStyle  `json:"style"`
	Items       []BallotItem `json:"items,omitempty"`
	Ranking     []int        `json:"ranking,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
}
