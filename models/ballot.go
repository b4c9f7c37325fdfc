package models

import "time"

// SubScores — числовые подоценки судьи по одной работе.
// Каждый критерий оценивается по шкале 0..10.
type SubScores struct {
	Quality     float64 `json:"quality" db:"quality"`
	Originality float64 `json:"originality" db:"originality"`
	Clarity     float64 `json:"clarity" db:"clarity"`
	Depth       float64 `json:"depth" db:"depth"`
}

// Mean возвращает среднее четырёх подоценок.
func (s SubScores) Mean() float64 {
	return (s.Quality + s.Originality + s.Clarity + s.Depth) / 4
}

// BallotItem — оценка одной работы внутри бюллетеня.
// Для numeric-стиля заполнены Scores и Rationale; для ranking-стиля
// позиция работы задаётся порядком в JudgeBallot.Ranking.
type BallotItem struct {
	EntryID   int        `json:"entry_id" db:"entry_id"`
	Scores    *SubScores `json:"scores,omitempty"`
	Rationale string     `json:"rationale" db:"rationale"`
}

// JudgeBallot — бюллетень судьи: ровно один на судью на конкурс.
// Повторная отправка заменяет предыдущий до закрытия фазы judging.
type JudgeBallot struct {
	ID        int         `json:"id" db:"id"`
	ContestID int         `json:"contest_id" db:"contest_id"`
	JudgeID   int         `json:"judge_id" db:"judge_id"`
	Style     BallotStyle `json:"style" db:"style"`
	// Items — подоценки по работам (numeric-стиль).
	Items []BallotItem `json:"items,omitempty"`
	// Ranking — строгое упорядочивание id работ, лучшая первой (ranking-стиль).
	Ranking     []int     `json:"ranking,omitempty"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ContestJudge — запись ростера судей конкурса.
type ContestJudge struct {
	ID         int       `json:"id" db:"id"`
	ContestID  int       `json:"contest_id" db:"contest_id"`
	JudgeID    int       `json:"judge_id" db:"judge_id"`
	AssignedAt time.Time `json:"assigned_at" db:"assigned_at"`
}
