package services

import "sync"

// ContestLocks сериализует мутации в пределах одного конкурса: все
// пишущие операции берут мьютекс конкурса, операции по разным конкурсам
// идут полностью параллельно. Вместе с транзакциями БД это даёт
// линеаризуемость per-contest, которую требует модель конкуренции.
//
// Мьютексы не удаляются: число конкурсов за время жизни процесса
// ограничено, а переиспользование исключает гонку удаления.
type ContestLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewContestLocks() *ContestLocks {
	return &ContestLocks{locks: make(map[int]*sync.Mutex)}
}

func (l *ContestLocks) forContest(contestID int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[contestID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[contestID] = m
	}
	return m
}

// Lock блокирует конкурс и возвращает функцию разблокировки.
func (l *ContestLocks) Lock(contestID int) func() {
	m := l.forContest(contestID)
	m.Lock()
	return m.Unlock
}
