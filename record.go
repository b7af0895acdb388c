package hdrhistogram

import "github.com/hdrhistogram/hdrhistogram-go/herr"

// RecordValue increments the counter for value by 1. It fails with an
// OutOfRange error (herr.OutOfRange) if value is outside
// [0, HighestTrackableValue]; on failure, no state is mutated.
func (h *Histogram) RecordValue(value int64) error {
	return h.RecordValues(value, 1)
}

// RecordValues increments the counter for value by count.
func (h *Histogram) RecordValues(value, count int64) error {
	idx, ok := h.mapping.IndexFor(value)
	if !ok {
		return herr.NewOutOfRange(value, h.mapping.HighestTrackableValue)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.store.Add(idx, count)
	h.totalCount += count
	if value > 0 && value < h.minNonZeroValue {
		h.minNonZeroValue = value
	}
	if value > h.maxValue {
		h.maxValue = value
	}
	return nil
}

// RecordValueWithExpectedInterval performs RecordValue(value), then, if
// expectedInterval > 0 and value > expectedInterval, additionally records
// one sample at each of value-expectedInterval, value-2*expectedInterval,
// ... down to (but not below) expectedInterval itself. This is the
// coordinated-omission correction of spec §4.2: a synthetic
// back-dated reconstruction of the samples a periodic measurer would have
// observed had it not been blocked by the one long sample actually
// recorded.
func (h *Histogram) RecordValueWithExpectedInterval(value, expectedInterval int64) error {
	return h.recordValueWithCountAndExpectedInterval(value, 1, expectedInterval)
}

func (h *Histogram) recordValueWithCountAndExpectedInterval(value, count, expectedInterval int64) error {
	if err := h.RecordValues(value, count); err != nil {
		return err
	}
	if expectedInterval <= 0 || value <= expectedInterval {
		return nil
	}
	for missing := value - expectedInterval; missing >= expectedInterval; missing -= expectedInterval {
		if err := h.RecordValues(missing, count); err != nil {
			return err
		}
	}
	return nil
}

// CopyCorrectedForCoordinatedOmission returns a new histogram in which
// every value recorded in h has additionally been expanded as
// RecordValueWithExpectedInterval would: it does not mutate h.
func (h *Histogram) CopyCorrectedForCoordinatedOmission(expectedInterval int64) *Histogram {
	target := newHistogram(h.mapping, h.variant)

	h.mu.Lock()
	snap := h.store.Snapshot()
	startMs, endMs := h.startTimestampMs, h.endTimestampMs
	h.mu.Unlock()

	for idx, count := range snap {
		if count == 0 {
			continue
		}
		value := h.mapping.ValueFromFlatIndex(int32(idx))
		// Errors are impossible here: every value came from h's own
		// counts array, so it is by construction within range.
		_ = target.recordValueWithCountAndExpectedInterval(value, count, expectedInterval)
	}
	target.startTimestampMs = startMs
	target.endTimestampMs = endMs
	return target
}
