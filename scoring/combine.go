package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Веса трёх источников оценки в итоговом балле.
const (
	WeightAlgorithmic = 0.4
	WeightCommunity   = 0.3
	WeightJudge       = 0.3
)

// Combine сводит три нормализованные оценки в итоговый балл
// round(0.4·alg + 0.3·community + 0.3·judge). Если у конкурса нет судей
// (hasJudges=false), вес судейской оценки перераспределяется
// пропорционально между двумя оставшимися источниками.
//
// Вход вне [0,100] — нарушение инварианта нормализации, а не данные,
// которые можно поджать: такие значения роняют пайплайн конкурса.
func Combine(algorithmic, community, judge float64, hasJudges bool) int {
	mustBeNormalized("algorithmic", algorithmic)
	mustBeNormalized("community", community)
	if hasJudges {
		mustBeNormalized("judge", judge)
		return int(math.Round(WeightAlgorithmic*algorithmic + WeightCommunity*community + WeightJudge*judge))
	}
	rest := WeightAlgorithmic + WeightCommunity
	return int(math.Round(WeightAlgorithmic/rest*algorithmic + WeightCommunity/rest*community))
}

func mustBeNormalized(name string, v float64) {
	if math.IsNaN(v) || v < 0 || v > 100 {
		panic(fmt.Sprintf("scoring: %s score %v is outside [0,100]", name, v))
	}
}

// RankedEntry — вход сортировки итогового рейтинга.
type RankedEntry struct {
	EntryID     int
	Final       int
	Judge       float64
	Community   float64
	SubmittedAt time.Time
}

// SortRanking упорядочивает работы по убыванию итогового балла.
// Ничьи разрешаются по большей судейской оценке, затем по большей
// community-оценке, затем по более ранней подаче.
func SortRanking(items []RankedEntry) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Final != b.Final {
			return a.Final > b.Final
		}
		if a.Judge != b.Judge {
			return a.Judge > b.Judge
		}
		if a.Community != b.Community {
			return a.Community > b.Community
		}
		return a.SubmittedAt.Before(b.SubmittedAt)
	})
}
