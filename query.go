package hdrhistogram

import (
	"math"
	"sort"
)

// ValueAtPercentile returns the approximate value at the given percentile
// (0..100), using integer math except for the ceiling computed on the
// target cumulative count. p=0 returns the minimum non-zero recorded
// value rounded down to its equivalence class (spec §4.5); all other
// percentiles return the highest value in the equivalence class reached.
func (h *Histogram) ValueAtPercentile(percentile float64) int64 {
	h.mu.Lock()
	total := h.totalCount
	minNonZero := h.minNonZeroValue
	maxValue := h.maxValue
	if total == 0 {
		h.mu.Unlock()
		return 0
	}
	snap := h.store.Snapshot()
	h.mu.Unlock()

	percentile = clampPercentile(percentile)
	if percentile == 0 {
		if minNonZero == maxInt64 {
			return 0
		}
		return h.mapping.LowestEquivalentValue(minNonZero)
	}

	target := targetCountForPercentile(percentile, total)
	var cumulative int64
	for idx, count := range snap {
		cumulative += count
		if cumulative >= target {
			return h.mapping.HighestEquivalentValue(h.mapping.ValueFromFlatIndex(int32(idx)))
		}
	}
	return h.mapping.HighestEquivalentValue(maxValue)
}

// ValueAtPercentiles batches ValueAtPercentile over many percentiles into a
// single scan of the counts array.
func (h *Histogram) ValueAtPercentiles(percentiles []float64) map[float64]int64 {
	result := make(map[float64]int64, len(percentiles))

	h.mu.Lock()
	total := h.totalCount
	minNonZero := h.minNonZeroValue
	maxValue := h.maxValue
	snap := h.store.Snapshot()
	h.mu.Unlock()

	if total == 0 {
		for _, p := range percentiles {
			result[p] = 0
		}
		return result
	}

	type request struct {
		p      float64
		target int64
	}
	var pending []request
	for _, p := range percentiles {
		clamped := clampPercentile(p)
		if clamped == 0 {
			if minNonZero == maxInt64 {
				result[p] = 0
			} else {
				result[p] = h.mapping.LowestEquivalentValue(minNonZero)
			}
			continue
		}
		pending = append(pending, request{p, targetCountForPercentile(clamped, total)})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].target < pending[j].target })

	var cumulative int64
	i := 0
	for idx, count := range snap {
		cumulative += count
		for i < len(pending) && cumulative >= pending[i].target {
			result[pending[i].p] = h.mapping.HighestEquivalentValue(h.mapping.ValueFromFlatIndex(int32(idx)))
			i++
		}
		if i >= len(pending) {
			break
		}
	}
	for ; i < len(pending); i++ {
		result[pending[i].p] = h.mapping.HighestEquivalentValue(maxValue)
	}
	return result
}

// PercentileAtOrBelowValue returns 100 * (count of recordings at or below
// v) / total_count.
func (h *Histogram) PercentileAtOrBelowValue(v int64) float64 {
	h.mu.Lock()
	total := h.totalCount
	if total == 0 {
		h.mu.Unlock()
		return 0
	}
	snap := h.store.Snapshot()
	h.mu.Unlock()

	var sum int64
	for idx, count := range snap {
		if h.mapping.ValueFromFlatIndex(int32(idx)) <= v {
			sum += count
		}
	}
	return 100 * float64(sum) / float64(total)
}

// CountBetweenValues returns the sum of counts for values v with
// low <= v <= HighestEquivalentValue(high).
func (h *Histogram) CountBetweenValues(low, high int64) int64 {
	highBound := h.mapping.HighestEquivalentValue(high)

	h.mu.Lock()
	snap := h.store.Snapshot()
	h.mu.Unlock()

	var sum int64
	for idx, count := range snap {
		v := h.mapping.ValueFromFlatIndex(int32(idx))
		if v >= low && v <= highBound {
			sum += count
		}
	}
	return sum
}

// Mean returns the approximate arithmetic mean of recorded values.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	total := h.totalCount
	snap := h.store.Snapshot()
	h.mu.Unlock()
	return meanOf(h, snap, total)
}

func meanOf(h *Histogram, snap []int64, total int64) float64 {
	if total == 0 {
		return 0
	}
	var sum float64
	for idx, count := range snap {
		if count == 0 {
			continue
		}
		v := h.mapping.ValueFromFlatIndex(int32(idx))
		sum += float64(count) * float64(h.mapping.MedianEquivalentValue(v))
	}
	return sum / float64(total)
}

// StdDeviation returns the approximate standard deviation of recorded
// values. The mean and the counts it is computed against come from the
// same locked snapshot as the variance sum, so a concurrent write on the
// Synchronized variant between the two passes can't produce a mean and a
// variance describing two different sets of recorded values.
func (h *Histogram) StdDeviation() float64 {
	h.mu.Lock()
	total := h.totalCount
	snap := h.store.Snapshot()
	h.mu.Unlock()
	if total == 0 {
		return 0
	}

	mean := meanOf(h, snap, total)

	var sumSquares float64
	for idx, count := range snap {
		if count == 0 {
			continue
		}
		v := h.mapping.ValueFromFlatIndex(int32(idx))
		dev := float64(h.mapping.MedianEquivalentValue(v)) - mean
		sumSquares += dev * dev * float64(count)
	}
	return math.Sqrt(sumSquares / float64(total))
}

func clampPercentile(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func targetCountForPercentile(percentile float64, total int64) int64 {
	target := int64(math.Ceil((percentile / 100.0) * float64(total)))
	if target < 1 {
		target = 1
	}
	return target
}
