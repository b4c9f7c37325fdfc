// Package phase реализует часы фаз конкурса: текущая фаза — чистая функция
// от времени старта и длительностей фаз, она нигде не хранится как
// изменяемое состояние, чтобы разные читатели не разъезжались.
package phase

import (
	"time"

	"github.com/ranqly/contest-engine/models"
)

// Order — фиксированный порядок фаз.
var Order = []models.ContestPhase{
	models.PhaseSubmission,
	models.PhaseScoring,
	models.PhaseDisputes,
	models.PhaseVoting,
	models.PhaseJudging,
	models.PhaseFinalization,
	models.PhaseCompleted,
}

// Index возвращает позицию фазы в порядке жизненного цикла, либо -1.
func Index(p models.ContestPhase) int {
	for i, ph := range Order {
		if ph == p {
			return i
		}
	}
	return -1
}

func durations(s models.PhaseSchedule) []time.Duration {
	return []time.Duration{
		s.Submission, s.Scoring, s.Disputes, s.Voting, s.Judging, s.Finalization,
	}
}

// StartOf возвращает момент начала фазы p по расписанию конкурса.
// Для completed это момент завершения всего конкурса.
func StartOf(c *models.Contest, p models.ContestPhase) time.Time {
	t := c.StartDate
	for i, d := range durations(c.Schedule) {
		if Order[i] == p {
			return t
		}
		t = t.Add(d)
	}
	return t // completed
}

// EndOf возвращает момент окончания фазы p. Для completed границы нет.
func EndOf(c *models.Contest, p models.ContestPhase) (time.Time, bool) {
	if p == models.PhaseCompleted {
		return time.Time{}, false
	}
	i := Index(p)
	if i < 0 {
		return time.Time{}, false
	}
	return StartOf(c, p).Add(durations(c.Schedule)[i]), true
}

// Current вычисляет фазу конкурса на момент now. Фазы нулевой длительности
// пропускаются. До start_date конкурс считается находящимся в submission
// (приём ещё не открыт по времени, но фаза уже определена).
func Current(c *models.Contest, now time.Time) models.ContestPhase {
	if now.Before(c.StartDate) {
		return models.PhaseSubmission
	}
	t := c.StartDate
	for i, d := range durations(c.Schedule) {
		t = t.Add(d)
		if now.Before(t) {
			return Order[i]
		}
	}
	return models.PhaseCompleted
}

// Deadline возвращает момент окончания текущей фазы, ok=false для completed.
func Deadline(c *models.Contest, now time.Time) (time.Time, bool) {
	return EndOf(c, Current(c, now))
}

// IsAdjacentForward сообщает, является ли target следующей фазой после
// current. Только такие переходы разрешены организатору как ранний перевод.
func IsAdjacentForward(current, target models.ContestPhase) bool {
	ci, ti := Index(current), Index(target)
	return ci >= 0 && ti >= 0 && ti == ci+1
}

// Доля фазы voting, отведённая под окно коммитов; остаток — окно раскрытия.
const commitWindowNumerator, commitWindowDenominator = 2, 3

// CommitWindow возвращает границы окна коммитов: первые 2/3 фазы voting.
func CommitWindow(c *models.Contest) (from, to time.Time) {
	from = StartOf(c, models.PhaseVoting)
	to = from.Add(c.Schedule.Voting * commitWindowNumerator / commitWindowDenominator)
	return from, to
}

// RevealWindow возвращает границы окна раскрытия: последняя 1/3 фазы voting.
// Окна ровно разбивают фазу: reveal начинается там, где кончается commit.
func RevealWindow(c *models.Contest) (from, to time.Time) {
	start := StartOf(c, models.PhaseVoting)
	from = start.Add(c.Schedule.Voting * commitWindowNumerator / commitWindowDenominator)
	to = start.Add(c.Schedule.Voting)
	return from, to
}

// InWindow проверяет попадание now в полуинтервал [from, to).
func InWindow(now, from, to time.Time) bool {
	return !now.Before(from) && now.Before(to)
}
