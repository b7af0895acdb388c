package hdrhistogram

import (
	"github.com/hdrhistogram/hdrhistogram-go/herr"
	"github.com/hdrhistogram/hdrhistogram-go/internal/mapping"
)

// Variant selects one of the four counts-storage width policies of
// spec §4.3. They share every algorithm; only the counter width and the
// synchronization policy differ.
type Variant int

const (
	// VariantLong is the default: 64-bit counters, single-writer,
	// overflow is not a practical concern.
	VariantLong Variant = iota
	// VariantShort uses 16-bit counters; a busy bucket can wrap and set
	// HasOverflowed.
	VariantShort
	// VariantInt uses 32-bit counters.
	VariantInt
	// VariantSynchronized uses 64-bit counters behind a mutex owned by
	// the histogram, for concurrent recording from multiple writers.
	VariantSynchronized
)

// Config describes the immutable shape of a Histogram. Once a Histogram is
// constructed from a Config, the configuration never changes for the life
// of the histogram (spec §3 Lifecycle).
type Config struct {
	// LowestDiscernibleValue is rounded down to the nearest power of 2
	// internally (spec §3); it must be >= 1.
	LowestDiscernibleValue int64
	// HighestTrackableValue must be >= 2x LowestDiscernibleValue.
	HighestTrackableValue int64
	// SignificantFigures is the number of significant decimal digits of
	// relative precision to preserve, in [0,5].
	SignificantFigures int64
	// Variant selects the counts-storage width/synchronization policy.
	// The zero value is VariantLong.
	Variant Variant
}

// New constructs a Histogram from cfg, validating it per spec §7
// (InvalidConfiguration).
func New(cfg Config) (*Histogram, error) {
	m, err := mapping.New(cfg.LowestDiscernibleValue, cfg.HighestTrackableValue, cfg.SignificantFigures)
	if err != nil {
		return nil, herr.NewInvalidConfiguration("%s", err.Error())
	}
	return newHistogram(m, cfg.Variant), nil
}

// NewLong is a convenience constructor for the default 64-bit,
// single-writer variant, mirroring the reference implementations' most
// commonly used constructor.
func NewLong(lowestDiscernibleValue, highestTrackableValue int64, significantFigures int64) (*Histogram, error) {
	return New(Config{lowestDiscernibleValue, highestTrackableValue, significantFigures, VariantLong})
}

// NewShort constructs the 16-bit counts variant.
func NewShort(lowestDiscernibleValue, highestTrackableValue int64, significantFigures int64) (*Histogram, error) {
	return New(Config{lowestDiscernibleValue, highestTrackableValue, significantFigures, VariantShort})
}

// NewInt constructs the 32-bit counts variant.
func NewInt(lowestDiscernibleValue, highestTrackableValue int64, significantFigures int64) (*Histogram, error) {
	return New(Config{lowestDiscernibleValue, highestTrackableValue, significantFigures, VariantInt})
}

// NewSynchronized constructs the 64-bit, mutex-guarded variant for
// multi-writer use (spec §5).
func NewSynchronized(lowestDiscernibleValue, highestTrackableValue int64, significantFigures int64) (*Histogram, error) {
	return New(Config{lowestDiscernibleValue, highestTrackableValue, significantFigures, VariantSynchronized})
}
