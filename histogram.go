// Package hdrhistogram implements a fixed-memory High Dynamic Range
// histogram: a data structure that records positive integer values across
// a wide dynamic range while guaranteeing a configured relative precision
// at every magnitude, with O(1) work per recorded sample.
package hdrhistogram

import (
	"sync"
	"sync/atomic"

	"github.com/hdrhistogram/hdrhistogram-go/internal/counts"
	"github.com/hdrhistogram/hdrhistogram-go/internal/mapping"
)

// countsStore is the narrow surface every counts.Counts[T] instantiation
// satisfies; it lets Histogram stay non-generic while still reusing one
// generic implementation per spec §9's design note.
type countsStore interface {
	Len() int32
	Add(idx int32, delta int64)
	Set(idx int32, value int64)
	Get(idx int32) int64
	Sum() int64
	Reset()
	Snapshot() []int64
}

var nextIdentity int64

// Histogram is a lossy, fixed-memory data structure recording the
// distribution of non-negative integer values with a bounded degree of
// relative precision. The zero value is not usable; construct one with
// New or one of the NewXxx convenience constructors.
type Histogram struct {
	mapping *mapping.Config
	store   countsStore
	variant Variant

	mu sync.Locker // *sync.Mutex for VariantSynchronized, noopLocker otherwise

	totalCount      int64
	minNonZeroValue int64
	maxValue        int64

	startTimestampMs int64
	endTimestampMs   int64

	identity int64
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

func newStore(variant Variant, length int32) countsStore {
	switch variant {
	case VariantShort:
		return counts.New[uint16](length)
	case VariantInt:
		return counts.New[uint32](length)
	default: // VariantLong, VariantSynchronized
		return counts.New[uint64](length)
	}
}

func newHistogram(m *mapping.Config, variant Variant) *Histogram {
	var mu sync.Locker = noopLocker{}
	if variant == VariantSynchronized {
		mu = &sync.Mutex{}
	}
	return &Histogram{
		mapping:         m,
		store:           newStore(variant, m.CountsArrayLength),
		variant:         variant,
		mu:              mu,
		minNonZeroValue: maxInt64,
		maxValue:        0,
		identity:        atomic.AddInt64(&nextIdentity, 1),
	}
}

const maxInt64 = int64(^uint64(0) >> 1)

// LowestDiscernibleValue returns the configured lowest discernible value.
func (h *Histogram) LowestDiscernibleValue() int64 { return h.mapping.LowestDiscernibleValue }

// HighestTrackableValue returns the configured highest trackable value.
func (h *Histogram) HighestTrackableValue() int64 { return h.mapping.HighestTrackableValue }

// SignificantFigures returns the configured number of significant digits.
func (h *Histogram) SignificantFigures() int64 { return h.mapping.SignificantFigures }

// Variant returns the counts-storage width/synchronization policy this
// histogram was constructed with.
func (h *Histogram) Variant() Variant { return h.variant }

// UnitMagnitude returns floor(log2(LowestDiscernibleValue)).
func (h *Histogram) UnitMagnitude() int32 { return h.mapping.UnitMagnitude }

// CountsArrayLength returns the length of the internal counts array.
func (h *Histogram) CountsArrayLength() int32 { return h.mapping.CountsArrayLength }

// Identity returns the histogram's monotonically increasing creation-order
// id, used to break lock-ordering ties in Add for the Synchronized variant.
func (h *Histogram) Identity() int64 { return h.identity }

// TotalCount returns the number of values recorded so far.
func (h *Histogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalCount
}

// Min returns the approximate minimum recorded value, or 0 if nothing has
// been recorded.
func (h *Histogram) Min() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.totalCount == 0 || h.minNonZeroValue == maxInt64 {
		return 0
	}
	return h.mapping.LowestEquivalentValue(h.minNonZeroValue)
}

// Max returns the approximate maximum recorded value, or 0 if nothing has
// been recorded.
func (h *Histogram) Max() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.totalCount == 0 {
		return 0
	}
	return h.mapping.HighestEquivalentValue(h.maxValue)
}

// StartTimestampMs returns the host-set start timestamp; the core treats
// it as opaque (spec §3).
func (h *Histogram) StartTimestampMs() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startTimestampMs
}

// SetStartTimestampMs sets the host-set start timestamp.
func (h *Histogram) SetStartTimestampMs(ms int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startTimestampMs = ms
}

// EndTimestampMs returns the host-set end timestamp.
func (h *Histogram) EndTimestampMs() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endTimestampMs
}

// SetEndTimestampMs sets the host-set end timestamp.
func (h *Histogram) SetEndTimestampMs(ms int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endTimestampMs = ms
}

// HasOverflowed reports whether a counter has wrapped, making total_count
// diverge from the sum of all counters (spec §4.3; only possible for the
// Short/Int variants).
func (h *Histogram) HasOverflowed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalCount != h.store.Sum()
}

// ReestablishTotalCount recomputes total_count as the sum of all counters,
// clearing HasOverflowed.
func (h *Histogram) ReestablishTotalCount() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalCount = h.store.Sum()
}

// Reset clears all counts, total_count, min/max, and timestamps, leaving
// the configuration untouched.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store.Reset()
	h.totalCount = 0
	h.minNonZeroValue = maxInt64
	h.maxValue = 0
	h.startTimestampMs = 0
	h.endTimestampMs = 0
}

// LowestEquivalentValue returns the lowest value in v's equivalence class.
func (h *Histogram) LowestEquivalentValue(v int64) int64 { return h.mapping.LowestEquivalentValue(v) }

// HighestEquivalentValue returns the highest value in v's equivalence class.
func (h *Histogram) HighestEquivalentValue(v int64) int64 {
	return h.mapping.HighestEquivalentValue(v)
}

// MedianEquivalentValue returns the midpoint value of v's equivalence class.
func (h *Histogram) MedianEquivalentValue(v int64) int64 {
	return h.mapping.MedianEquivalentValue(v)
}

// SizeOfEquivalentRange returns the width of v's equivalence class.
func (h *Histogram) SizeOfEquivalentRange(v int64) int64 {
	return h.mapping.SizeOfEquivalentRange(v)
}

// ValuesAreEquivalent reports whether a and b map to the same counts index.
func (h *Histogram) ValuesAreEquivalent(a, b int64) bool {
	return h.mapping.ValuesAreEquivalent(a, b)
}

// CountAtValue returns the number of recordings equivalent to v.
func (h *Histogram) CountAtValue(v int64) int64 {
	idx, ok := h.mapping.IndexFor(v)
	if !ok {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Get(idx)
}

// Equals reports whether h and other have the same configuration, the
// same total_count, and identical counts, per spec §8 property 5.
func (h *Histogram) Equals(other *Histogram) bool {
	if other == nil {
		return false
	}
	if h.mapping.LowestDiscernibleValue != other.mapping.LowestDiscernibleValue ||
		h.mapping.HighestTrackableValue != other.mapping.HighestTrackableValue ||
		h.mapping.SignificantFigures != other.mapping.SignificantFigures {
		return false
	}
	unlock := h.lockBothAscendingIdentity(other)
	defer unlock()
	if h.totalCount != other.totalCount {
		return false
	}
	a, b := h.store.Snapshot(), other.store.Snapshot()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep clone of h: same configuration, counts, total_count,
// min/max, and timestamps.
func (h *Histogram) Copy() *Histogram {
	target := newHistogram(h.mapping, h.variant)
	h.CopyInto(target)
	return target
}

// CopyInto deep-copies h's state into target, which must share h's
// configuration (same mapping.Config values); it is typically obtained via
// h.Copy or constructed identically.
func (h *Histogram) CopyInto(target *Histogram) {
	unlock := h.lockBothAscendingIdentity(target)
	defer unlock()

	snap := h.store.Snapshot()
	for i, v := range snap {
		target.store.Set(int32(i), v)
	}
	target.totalCount = h.totalCount
	target.minNonZeroValue = h.minNonZeroValue
	target.maxValue = h.maxValue
	target.startTimestampMs = h.startTimestampMs
	target.endTimestampMs = h.endTimestampMs
}
