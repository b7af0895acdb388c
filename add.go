package hdrhistogram

import "github.com/hdrhistogram/hdrhistogram-go/herr"

// lockBothAscendingIdentity locks h and other in ascending Identity()
// order (spec §5: "if self.identity < other.identity, lock self first,
// else lock other first"), returning a function that unlocks them in the
// reverse order. Safe to call when h == other or when either lock is a
// no-op.
func (h *Histogram) lockBothAscendingIdentity(other *Histogram) func() {
	if h == other {
		h.mu.Lock()
		return h.mu.Unlock
	}
	first, second := h, other
	if other.identity < h.identity {
		first, second = other, h
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// Add merges every recorded value in other into h: for each non-zero
// bucket in other, it translates that bucket's representative value into
// h's own index space and adds the count. It fails with herr.OutOfRange,
// without mutating h, if any value recorded in other exceeds h's
// HighestTrackableValue.
func (h *Histogram) Add(other *Histogram) error {
	unlock := h.lockBothAscendingIdentity(other)
	defer unlock()

	otherSnap := other.store.Snapshot()

	// Validate before mutating: spec §4.2 requires Add to fail without
	// partial mutation when any source value is out of range.
	type entry struct {
		idx   int32
		value int64
		count int64
	}
	entries := make([]entry, 0, len(otherSnap))
	for i, count := range otherSnap {
		if count == 0 {
			continue
		}
		value := other.mapping.ValueFromFlatIndex(int32(i))
		idx, ok := h.mapping.IndexFor(value)
		if !ok {
			return herr.NewOutOfRange(value, h.mapping.HighestTrackableValue)
		}
		entries = append(entries, entry{idx, value, count})
	}

	for _, e := range entries {
		h.store.Add(e.idx, e.count)
		h.totalCount += e.count
		if e.value > 0 && e.value < h.minNonZeroValue {
			h.minNonZeroValue = e.value
		}
		if e.value > h.maxValue {
			h.maxValue = e.value
		}
	}
	return nil
}

// Subtract removes every recorded value in other from h. It fails with
// herr.NegativeCount, without mutating h, if any resulting counter would
// go negative.
func (h *Histogram) Subtract(other *Histogram) error {
	unlock := h.lockBothAscendingIdentity(other)
	defer unlock()

	otherSnap := other.store.Snapshot()

	// Several of other's buckets can translate into the same h index when
	// h has coarser resolution than other, so the negative-count check
	// must run against the cumulative delta per destination index, not
	// each source bucket checked independently against the live counter —
	// otherwise two bucket-sized withdrawals that each individually fit
	// can still drive the shared counter negative.
	deltas := make(map[int32]int64, len(otherSnap))
	order := make([]int32, 0, len(otherSnap))
	for i, count := range otherSnap {
		if count == 0 {
			continue
		}
		value := other.mapping.ValueFromFlatIndex(int32(i))
		idx, ok := h.mapping.IndexFor(value)
		if !ok {
			return herr.NewOutOfRange(value, h.mapping.HighestTrackableValue)
		}
		if _, seen := deltas[idx]; !seen {
			order = append(order, idx)
		}
		deltas[idx] += count
	}

	for _, idx := range order {
		if result := h.store.Get(idx) - deltas[idx]; result < 0 {
			return herr.NewNegativeCount(idx, result)
		}
	}

	for _, idx := range order {
		h.store.Add(idx, -deltas[idx])
		h.totalCount -= deltas[idx]
	}
	return nil
}
