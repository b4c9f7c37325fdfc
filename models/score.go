package models

import "time"

// ScoreRecord — производная запись оценок одной работы. Не редактируется
// пользователями напрямую: алгоритмическая оценка приходит от внешнего
// скорера, community/judge считаются на границах фаз, final — при
// финализации. После FrozenAt запись неизменяема.
type ScoreRecord struct {
	ID          int        `json:"id" db:"id"`
	ContestID   int        `json:"contest_id" db:"contest_id"`
	EntryID     int        `json:"entry_id" db:"entry_id"`
	Algorithmic *float64   `json:"algorithmic_score,omitempty" db:"algorithmic_score"`
	Community   *float64   `json:"community_score,omitempty" db:"community_score"`
	Judge       *float64   `json:"judge_score,omitempty" db:"judge_score"`
	Final       *int       `json:"final_score,omitempty" db:"final_score"`
	FrozenAt    *time.Time `json:"frozen_at,omitempty" db:"frozen_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// RankingItem — одна строка итогового рейтинга.
type RankingItem struct {
	Rank        int       `json:"rank"`
	EntryID     int       `json:"entry_id"`
	Title       string    `json:"title,omitempty"`
	AuthorID    int       `json:"author_id,omitempty"`
	Final       int       `json:"final_score"`
	Algorithmic float64   `json:"algorithmic_score"`
	Community   float64   `json:"community_score"`
	Judge       float64   `json:"judge_score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Ranking — итоговый рейтинг конкурса, зафиксированный при финализации.
// Дисквалифицированные работы в рейтинг не входят (остаются в audit pack).
type Ranking struct {
	ContestID   int           `json:"contest_id"`
	FinalizedAt time.Time     `json:"finalized_at"`
	Items       []RankingItem `json:"items"`
}
