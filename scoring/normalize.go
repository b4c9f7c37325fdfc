package scoring

// MinMax нормализует сырые значения на отрезок [0,100] min-max-масштабом:
// максимум получает 100, минимум — 0. Если все значения равны (включая
// случай единственной работы), каждая получает 50.
func MinMax(raw map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	var min, max float64
	first := true
	for _, v := range raw {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		for id := range raw {
			out[id] = 50
		}
		return out
	}
	for id, v := range raw {
		out[id] = (v - min) / (max - min) * 100
	}
	return out
}
