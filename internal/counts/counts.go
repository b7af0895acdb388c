// Package counts implements the four counts-array width variants named in
// spec §4.3 (Short/Int/Long/Synchronized) as a single generic type
// parameterized by counter width, instead of four duplicated
// implementations. Synchronization is not this package's concern: per
// spec §5 the mutex, when one exists, is "owned by the histogram" and
// guards whole operations (record/add/subtract), not individual counter
// accesses, so it lives one layer up in the root package.
package counts

// Unsigned is the set of counter widths the histogram can be built on.
type Unsigned interface {
	~uint16 | ~uint32 | ~uint64
}

// Counts is a fixed-length array of unsigned counters of width T.
type Counts[T Unsigned] struct {
	values []T
}

// New allocates a Counts of the given length.
func New[T Unsigned](length int32) *Counts[T] {
	return &Counts[T]{values: make([]T, length)}
}

// Len returns the number of counters.
func (c *Counts[T]) Len() int32 {
	return int32(len(c.values))
}

// Add increments the counter at idx by delta (which may be negative),
// wrapping on overflow/underflow exactly as the narrow-width variants do.
func (c *Counts[T]) Add(idx int32, delta int64) {
	c.values[idx] += T(delta)
}

// Set assigns the counter at idx to value.
func (c *Counts[T]) Set(idx int32, value int64) {
	c.values[idx] = T(value)
}

// Get returns the counter at idx, widened to int64.
func (c *Counts[T]) Get(idx int32) int64 {
	return int64(c.values[idx])
}

// Sum returns the sum of every counter, widened to int64. Used by
// HasOverflowed/ReestablishTotalCount (spec §4.3).
func (c *Counts[T]) Sum() int64 {
	var sum int64
	for _, v := range c.values {
		sum += int64(v)
	}
	return sum
}

// Reset zeroes every counter.
func (c *Counts[T]) Reset() {
	for i := range c.values {
		c.values[i] = 0
	}
}

// Snapshot copies every counter out as int64, in index order. Used by the
// iterators and the V2 encoder.
func (c *Counts[T]) Snapshot() []int64 {
	out := make([]int64, len(c.values))
	for i, v := range c.values {
		out[i] = int64(v)
	}
	return out
}

// CopyInto deep-copies c's counters into dst, which must have the same
// length.
func (c *Counts[T]) CopyInto(dst *Counts[T]) {
	copy(dst.values, c.values)
}
