// Package mapping implements the value/index bucket mathematics shared by
// the histogram, its iterators, and the V2 codec: given the three
// configuration knobs (lowest discernible value, highest trackable value,
// significant figures) it derives the bucket layout once and offers O(1)
// value<->index translation plus the equivalence-class predicates every
// other package depends on.
package mapping

import (
	"fmt"

	"github.com/hdrhistogram/hdrhistogram-go/internal/bits"
)

// Config holds the immutable, derived layout of a histogram's counts array.
// It has no behavior beyond pure arithmetic: it does not own a counts array.
type Config struct {
	LowestDiscernibleValue int64
	HighestTrackableValue  int64
	SignificantFigures     int64

	UnitMagnitude               int32
	SubBucketCountMagnitude     int32
	SubBucketHalfCountMagnitude int32
	SubBucketCount              int32
	SubBucketHalfCount          int32
	SubBucketMask               int64
	BucketCount                 int32
	CountsArrayLength           int32
}

// New derives a Config from the three configuration knobs. lowest is
// rounded down to the nearest power of 2 internally via UnitMagnitude,
// matching the source's treatment of lowestDiscernibleValue.
func New(lowest, highest int64, significantFigures int64) (*Config, error) {
	if significantFigures < 0 || significantFigures > 5 {
		return nil, fmt.Errorf("mapping: significant figures must be in [0,5], got %d", significantFigures)
	}
	if lowest < 1 {
		return nil, fmt.Errorf("mapping: lowest discernible value must be >= 1, got %d", lowest)
	}
	if highest < 2*lowest {
		return nil, fmt.Errorf("mapping: highest trackable value (%d) must be >= 2x lowest discernible value (%d)", highest, lowest)
	}

	largestValueWithSingleUnitResolution := 2 * pow10(significantFigures)
	subBucketCountMagnitude := int32(bits.Log2Ceil(largestValueWithSingleUnitResolution))

	subBucketHalfCountMagnitude := subBucketCountMagnitude
	if subBucketHalfCountMagnitude < 1 {
		subBucketHalfCountMagnitude = 1
	}
	subBucketHalfCountMagnitude--

	unitMagnitude := int32(bits.Log2Floor(lowest))

	subBucketCount := int32(1) << uint(subBucketHalfCountMagnitude+1)
	subBucketHalfCount := subBucketCount / 2
	subBucketMask := int64(subBucketCount-1) << uint(unitMagnitude)

	// bucketCount is the smallest N such that
	// subBucketCount << (unitMagnitude + N - 1) > highest, i.e. the
	// smallest N for which the bucket range covers highest.
	smallestUntrackableValue := int64(subBucketCount) << uint(unitMagnitude)
	bucketsNeeded := int32(1)
	for smallestUntrackableValue <= highest {
		if smallestUntrackableValue > (1<<62)/2 {
			bucketsNeeded++
			break
		}
		smallestUntrackableValue <<= 1
		bucketsNeeded++
	}

	countsArrayLength := (bucketsNeeded + 1) * subBucketHalfCount

	return &Config{
		LowestDiscernibleValue:      lowest,
		HighestTrackableValue:      highest,
		SignificantFigures:          significantFigures,
		UnitMagnitude:               unitMagnitude,
		SubBucketCountMagnitude:     subBucketCountMagnitude,
		SubBucketHalfCountMagnitude: subBucketHalfCountMagnitude,
		SubBucketCount:              subBucketCount,
		SubBucketHalfCount:          subBucketHalfCount,
		SubBucketMask:               subBucketMask,
		BucketCount:                 bucketsNeeded,
		CountsArrayLength:           countsArrayLength,
	}, nil
}

func pow10(exp int64) int64 {
	n := int64(1)
	for ; exp > 0; exp-- {
		n *= 10
	}
	return n
}

// BucketIndex returns the bucket index that v falls into, for any
// v in [0, HighestTrackableValue].
func (c *Config) BucketIndex(v int64) int32 {
	pow2Ceiling := bits.Len64(uint64(v) | uint64(c.SubBucketMask))
	return int32(pow2Ceiling) - c.UnitMagnitude - (c.SubBucketHalfCountMagnitude + 1)
}

// SubBucketIndex returns the sub-bucket index of v within the given bucket.
func (c *Config) SubBucketIndex(v int64, bucketIndex int32) int32 {
	return int32(v >> uint(int64(bucketIndex)+int64(c.UnitMagnitude)))
}

// CountsIndex maps a (bucketIndex, subBucketIndex) pair to a flat index in
// the counts array. The formula is uniform across bucket 0 and later
// buckets: bucket 0 contributes its full range, every later bucket
// contributes only its upper half (the lower half duplicates the
// resolution of the previous bucket).
func (c *Config) CountsIndex(bucketIndex, subBucketIndex int32) int32 {
	bucketBaseIndex := (bucketIndex + 1) << uint(c.SubBucketHalfCountMagnitude)
	offsetInBucket := subBucketIndex - c.SubBucketHalfCount
	return bucketBaseIndex + offsetInBucket
}

// IndexFor returns the flat counts-array index for v, or false if v is out
// of the trackable range [0, HighestTrackableValue].
func (c *Config) IndexFor(v int64) (int32, bool) {
	if v < 0 || v > c.HighestTrackableValue {
		return 0, false
	}
	bucketIndex := c.BucketIndex(v)
	subBucketIndex := c.SubBucketIndex(v, bucketIndex)
	if subBucketIndex >= c.SubBucketCount {
		return 0, false
	}
	idx := c.CountsIndex(bucketIndex, subBucketIndex)
	if idx < 0 || idx >= c.CountsArrayLength {
		return 0, false
	}
	return idx, true
}

// ValueFromIndex reconstructs the lowest value represented by a
// (bucketIndex, subBucketIndex) pair.
func (c *Config) ValueFromIndex(bucketIndex, subBucketIndex int32) int64 {
	return int64(subBucketIndex) << uint(int64(bucketIndex)+int64(c.UnitMagnitude))
}

// SizeOfEquivalentRange returns the width of the equivalence class that v
// belongs to: 1 << (bucketIndex + unitMagnitude), adjusted for the case
// where v's sub-bucket index rolled into the next bucket.
func (c *Config) SizeOfEquivalentRange(v int64) int64 {
	bucketIndex := c.BucketIndex(v)
	subBucketIndex := c.SubBucketIndex(v, bucketIndex)
	adjustedBucket := bucketIndex
	if subBucketIndex >= c.SubBucketCount {
		adjustedBucket++
	}
	return int64(1) << uint(int64(c.UnitMagnitude)+int64(adjustedBucket))
}

// LowestEquivalentValue returns the lowest value in v's equivalence class.
func (c *Config) LowestEquivalentValue(v int64) int64 {
	bucketIndex := c.BucketIndex(v)
	subBucketIndex := c.SubBucketIndex(v, bucketIndex)
	return c.ValueFromIndex(bucketIndex, subBucketIndex)
}

// NextNonEquivalentValue returns the first value strictly above v's
// equivalence class.
func (c *Config) NextNonEquivalentValue(v int64) int64 {
	return c.LowestEquivalentValue(v) + c.SizeOfEquivalentRange(v)
}

// HighestEquivalentValue returns the highest value in v's equivalence class.
func (c *Config) HighestEquivalentValue(v int64) int64 {
	return c.NextNonEquivalentValue(v) - 1
}

// MedianEquivalentValue returns the midpoint value of v's equivalence class.
func (c *Config) MedianEquivalentValue(v int64) int64 {
	return c.LowestEquivalentValue(v) + (c.SizeOfEquivalentRange(v) >> 1)
}

// ValuesAreEquivalent reports whether a and b fall in the same bucket.
func (c *Config) ValuesAreEquivalent(a, b int64) bool {
	return c.LowestEquivalentValue(a) == c.LowestEquivalentValue(b)
}

// BucketAndSubBucketFromFlatIndex inverts CountsIndex: given a flat index
// into the counts array, it recovers the (bucketIndex, subBucketIndex) pair
// whose CountsIndex produced it. This is what lets every consumer of the
// counts array (iterators, Add/Subtract, the codec) walk the array by flat
// index alone and still recover values in ascending order, instead of
// re-deriving the bucket/sub-bucket state machine at every call site.
func (c *Config) BucketAndSubBucketFromFlatIndex(idx int32) (bucketIndex, subBucketIndex int32) {
	bucketIndex = (idx >> uint(c.SubBucketHalfCountMagnitude)) - 1
	subBucketIndex = (idx & (c.SubBucketHalfCount - 1)) + c.SubBucketHalfCount
	if bucketIndex < 0 {
		subBucketIndex -= c.SubBucketHalfCount
		bucketIndex = 0
	}
	return bucketIndex, subBucketIndex
}

// ValueFromFlatIndex returns the representative value of the equivalence
// class stored at counts-array index idx.
func (c *Config) ValueFromFlatIndex(idx int32) int64 {
	b, s := c.BucketAndSubBucketFromFlatIndex(idx)
	return c.ValueFromIndex(b, s)
}
