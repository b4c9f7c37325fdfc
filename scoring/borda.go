// Package scoring содержит чистое вычислительное ядро движка: перевод
// ранжирований в баллы, нормализацию и взвешенное сведение оценок.
// Никакой случайности и никакого ввода-вывода: одни и те же входы всегда
// дают один и тот же рейтинг.
package scoring

import (
	"errors"
	"fmt"
)

var ErrEmptyRanking = errors.New("ranking must not be empty")

// BordaPoints переводит ранжирования судей в суммарные баллы Борда.
// В каждом ранжировании из N работ первая получает N очков, последняя — 1.
// Очки суммируются по всем судьям. Каждое ранжирование обязано быть
// строгой перестановкой одного и того же множества работ.
func BordaPoints(rankings [][]int) (map[int]float64, error) {
	if len(rankings) == 0 || len(rankings[0]) == 0 {
		return nil, ErrEmptyRanking
	}
	n := len(rankings[0])
	points := make(map[int]float64, n)
	for _, r := range rankings[0] {
		points[r] = 0
	}
	for _, ranking := range rankings {
		if len(ranking) != n {
			return nil, fmt.Errorf("ranking length mismatch: want %d, got %d", n, len(ranking))
		}
		seen := make(map[int]bool, n)
		for pos, entryID := range ranking {
			if _, ok := points[entryID]; !ok {
				return nil, fmt.Errorf("entry %d is not part of the common ranking set", entryID)
			}
			if seen[entryID] {
				return nil, fmt.Errorf("entry %d ranked twice", entryID)
			}
			seen[entryID] = true
			points[entryID] += float64(n - pos)
		}
	}
	return points, nil
}

// SubScoreMeans усредняет средние подоценок по судьям для каждой работы и
// масштабирует результат со шкалы 0..10 на 0..100. На вход идёт карта
// entryID -> средние подоценки каждого оценившего судьи.
func SubScoreMeans(perEntry map[int][]float64) map[int]float64 {
	out := make(map[int]float64, len(perEntry))
	for entryID, means := range perEntry {
		if len(means) == 0 {
			continue
		}
		var sum float64
		for _, m := range means {
			sum += m
		}
		out[entryID] = sum / float64(len(means)) * 10
	}
	return out
}
