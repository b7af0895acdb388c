package hdrhistogram

import (
	"math"

	"github.com/hdrhistogram/hdrhistogram-go/herr"
	"github.com/hdrhistogram/hdrhistogram-go/internal/mapping"
)

// iterator is the scaffold shared by all five walkers: it snapshots the
// counts array and total_count once at construction, then walks flat
// indices in ascending value order. Concrete iterators differ only in
// when they decide a step is worth reporting.
type iterator struct {
	m                  *mapping.Config
	counts             []int64
	totalCountSnapshot int64
	totalCountFunc     func() int64
	maxValueSnapshot   int64

	idx             int32
	totalCountToIdx int64
	totalValueToIdx int64

	value              int64
	countAtValue       int64
	countAddedThisStep int64

	err error
}

func newIterator(h *Histogram) *iterator {
	h.mu.Lock()
	counts := h.store.Snapshot()
	total := h.totalCount
	maxValue := h.maxValue
	h.mu.Unlock()

	return &iterator{
		m:                  h.mapping,
		counts:             counts,
		totalCountSnapshot: total,
		totalCountFunc:     h.TotalCount,
		maxValueSnapshot:   maxValue,
		idx:                -1,
	}
}

func (it *iterator) checkConcurrentModification() bool {
	if it.totalCountFunc() != it.totalCountSnapshot {
		it.err = herr.NewConcurrentModification()
		return false
	}
	return true
}

// Value returns the representative value of the current step.
func (it *iterator) Value() int64 { return it.value }

// Count returns the counter value associated with the current step.
func (it *iterator) Count() int64 { return it.countAtValue }

// CountAddedInThisStep returns how much of total_count was contributed by
// this step alone.
func (it *iterator) CountAddedInThisStep() int64 { return it.countAddedThisStep }

// TotalCountToThisValue returns the cumulative count up to and including
// the current step.
func (it *iterator) TotalCountToThisValue() int64 { return it.totalCountToIdx }

// TotalValueToThisValue returns Σ count×median_equivalent(value) up to and
// including the current step.
func (it *iterator) TotalValueToThisValue() int64 { return it.totalValueToIdx }

// Err returns the error that stopped iteration, if any (only
// herr.ConcurrentModification is possible).
func (it *iterator) Err() error { return it.err }

func (it *iterator) advance() (value int64, count int64, ok bool) {
	if it.idx+1 >= int32(len(it.counts)) {
		return 0, 0, false
	}
	it.idx++
	if !it.checkConcurrentModification() {
		return 0, 0, false
	}
	v := it.m.ValueFromFlatIndex(it.idx)
	c := it.counts[it.idx]
	it.totalCountToIdx += c
	it.totalValueToIdx += c * it.m.MedianEquivalentValue(v)
	return v, c, true
}

// RecordedValuesIterator walks every bucket that has at least one
// recorded value, in ascending order.
type RecordedValuesIterator struct{ *iterator }

// RecordedValues returns an iterator over every equivalence class with a
// non-zero count.
func (h *Histogram) RecordedValues() *RecordedValuesIterator {
	return &RecordedValuesIterator{newIterator(h)}
}

// Next advances the iterator. It returns false once iteration is
// exhausted or a concurrent modification was detected (check Err).
func (it *RecordedValuesIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		v, c, ok := it.advance()
		if !ok {
			return false
		}
		if c == 0 {
			continue
		}
		it.value = it.m.HighestEquivalentValue(v)
		it.countAtValue = c
		it.countAddedThisStep = c
		return true
	}
}

// AllValuesIterator walks every equivalence class in the counts array,
// including those with a zero count.
type AllValuesIterator struct{ *iterator }

// AllValues returns an iterator over every equivalence class, recorded or
// not.
func (h *Histogram) AllValues() *AllValuesIterator {
	return &AllValuesIterator{newIterator(h)}
}

// Next advances the iterator.
func (it *AllValuesIterator) Next() bool {
	if it.err != nil {
		return false
	}
	v, c, ok := it.advance()
	if !ok {
		return false
	}
	it.value = it.m.HighestEquivalentValue(v)
	it.countAtValue = c
	it.countAddedThisStep = c
	return true
}

// LinearIterator reports the count accumulated in successive value
// ranges of fixed width step.
type LinearIterator struct {
	*iterator
	step               int64
	nextLevel          int64
	countSinceLastStep int64
	done               bool
}

// LinearValues returns an iterator that reports counts in buckets of
// width step, starting at step itself.
func (h *Histogram) LinearValues(step int64) *LinearIterator {
	return &LinearIterator{iterator: newIterator(h), step: step, nextLevel: step}
}

// Next advances the iterator. An equivalence class wider than step covers
// several reporting levels; each of them is reported in turn (the later
// ones with a zero count) before the walk moves to the next index. Once
// every count has been folded in, iteration stops at the first level at
// or above the histogram's maximum recorded value, or, if the walk passes
// that value first, after one final step flushing whatever count is still
// pending — it never walks the remaining, necessarily-empty tail of the
// counts array out to highest_trackable_value.
func (it *LinearIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.done {
		return false
	}
	for {
		var v int64
		if it.idx >= 0 && it.m.ValueFromFlatIndex(it.idx) >= it.m.LowestEquivalentValue(it.nextLevel) {
			v = it.m.ValueFromFlatIndex(it.idx)
		} else {
			var c int64
			var ok bool
			v, c, ok = it.advance()
			if !ok {
				it.done = true
				if it.countSinceLastStep == 0 {
					return false
				}
				it.value = it.nextLevel
				it.countAtValue = it.countSinceLastStep
				it.countAddedThisStep = it.countSinceLastStep
				it.countSinceLastStep = 0
				return true
			}
			it.countSinceLastStep += c
		}
		if v >= it.m.LowestEquivalentValue(it.nextLevel) {
			it.value = it.nextLevel
			it.countAtValue = it.countSinceLastStep
			it.countAddedThisStep = it.countSinceLastStep
			it.countSinceLastStep = 0
			it.done = it.totalCountToIdx >= it.totalCountSnapshot && it.nextLevel >= it.maxValueSnapshot
			it.nextLevel += it.step
			return true
		}
		if it.totalCountToIdx >= it.totalCountSnapshot && v >= it.maxValueSnapshot {
			it.done = true
			it.value = it.nextLevel
			it.countAtValue = it.countSinceLastStep
			it.countAddedThisStep = it.countSinceLastStep
			it.countSinceLastStep = 0
			return true
		}
	}
}

// LogarithmicIterator reports the count accumulated in successive value
// ranges that start at first and grow by a factor of base.
type LogarithmicIterator struct {
	*iterator
	base               float64
	nextLevel          float64
	countSinceLastStep int64
	done               bool
}

// LogarithmicValues returns an iterator whose reporting levels are
// first, first*base, first*base^2, ...
func (h *Histogram) LogarithmicValues(first int64, base float64) *LogarithmicIterator {
	return &LogarithmicIterator{iterator: newIterator(h), base: base, nextLevel: float64(first)}
}

// Next advances the iterator. As with LinearIterator, once the maximum
// recorded value has been folded in, the remaining pending count is
// flushed as one final step and iteration stops there.
func (it *LogarithmicIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.done {
		return false
	}
	for {
		level := int64(it.nextLevel)
		v, c, ok := it.advance()
		if !ok {
			it.done = true
			if it.countSinceLastStep == 0 {
				return false
			}
			it.value = level
			it.countAtValue = it.countSinceLastStep
			it.countAddedThisStep = it.countSinceLastStep
			it.countSinceLastStep = 0
			return true
		}
		it.countSinceLastStep += c
		if v >= it.m.LowestEquivalentValue(level) {
			it.value = level
			it.countAtValue = it.countSinceLastStep
			it.countAddedThisStep = it.countSinceLastStep
			it.countSinceLastStep = 0
			it.done = it.totalCountToIdx >= it.totalCountSnapshot && v >= it.maxValueSnapshot
			it.nextLevel *= it.base
			return true
		}
		if it.totalCountToIdx >= it.totalCountSnapshot && v >= it.maxValueSnapshot {
			it.done = true
			it.value = level
			it.countAtValue = it.countSinceLastStep
			it.countAddedThisStep = it.countSinceLastStep
			it.countSinceLastStep = 0
			return true
		}
	}
}

// PercentileIterator reports values at successively finer percentile
// tiers, doubling resolution as the percentile approaches 100.
type PercentileIterator struct {
	*iterator
	ticksPerHalfDistance     int32
	percentileToIterateTo    float64
	percentile               float64
	reachedLastRecordedValue bool
	totalCountAtLastStep     int64
}

// Percentiles returns an iterator reporting ticksPerHalfDistance steps
// for every halving of the distance to the 100th percentile.
func (h *Histogram) Percentiles(ticksPerHalfDistance int32) *PercentileIterator {
	return &PercentileIterator{iterator: newIterator(h), ticksPerHalfDistance: ticksPerHalfDistance}
}

// Percentile returns the percentile tier reported by the current step.
func (it *PercentileIterator) Percentile() float64 { return it.percentile }

// Next advances the iterator. Per spec the last recorded bucket always
// produces one additional, final step pinned at exactly 100%, even when
// cumulative count already reached the target tier on the prior step.
func (it *PercentileIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.totalCountSnapshot == 0 {
		return false
	}
	for {
		v, c, ok := it.advance()
		if !ok {
			if !it.reachedLastRecordedValue {
				it.reachedLastRecordedValue = true
				it.value = it.m.HighestEquivalentValue(it.value)
				it.percentile = 100
				it.countAtValue = 0
				it.countAddedThisStep = 0
				return true
			}
			return false
		}
		if c == 0 {
			continue
		}
		cumulativePercentile := 100 * float64(it.totalCountToIdx) / float64(it.totalCountSnapshot)
		if cumulativePercentile >= it.percentileToIterateTo {
			it.value = it.m.HighestEquivalentValue(v)
			it.countAtValue = c
			it.countAddedThisStep = it.totalCountToIdx - it.totalCountAtLastStep
			it.totalCountAtLastStep = it.totalCountToIdx
			it.percentile = it.percentileToIterateTo
			it.percentileToIterateTo = nextPercentileTier(it.percentileToIterateTo, it.ticksPerHalfDistance)
			return true
		}
	}
}

// nextPercentileTier computes the next reporting percentile above p,
// doubling resolution each time the distance to 100 halves. This mirrors
// the canonical percentile-iterator step size: ticksPerHalfDistance steps
// per halving of (100-p), so resolution scales with -log10(1-p).
func nextPercentileTier(p float64, ticksPerHalfDistance int32) float64 {
	if p >= 100 {
		return 100
	}
	if ticksPerHalfDistance < 1 {
		ticksPerHalfDistance = 1
	}
	exponent := math.Floor(math.Log2(100/(100-p))) + 1
	halfDistance := math.Pow(2, exponent)
	step := 100 / (float64(ticksPerHalfDistance) * halfDistance)
	next := p + step
	if next > 100 {
		next = 100
	}
	return next
}
