package hdrhistogram

import (
	"fmt"
	"io"
	"math"

	"github.com/hdrhistogram/hdrhistogram-go/herr"
)

// OutputPercentileDistribution writes a textual percentile table to sink,
// walking h with a PercentileIterator of ticksPerHalfDistance resolution
// and scaling every reported value by 1/valueScale (pass 1.0 for no
// scaling). In csv mode it emits the four-column CSV spec §4.5 names;
// otherwise it writes a right-aligned table followed by a
// #[Mean, StdDeviation, Max, Total count, Buckets, SubBuckets] summary
// comment. There is no third-party table-formatting library anywhere in
// the retrieval pack to model this on, so it is built on fmt.Fprintf
// fixed-width verbs directly, the same way the canonical HdrHistogram
// console output is a plain formatted table.
func (h *Histogram) OutputPercentileDistribution(sink io.Writer, ticksPerHalfDistance int32, valueScale float64, csv bool) error {
	if valueScale == 0 {
		valueScale = 1
	}

	if csv {
		if _, err := fmt.Fprintln(sink, `"Value","Percentile","TotalCount","1/(1-Percentile)"`); err != nil {
			return herr.NewIoError(err)
		}
	} else {
		if _, err := fmt.Fprintf(sink, "%12s %14s %10s %14s\n\n", "Value", "Percentile", "TotalCount", "1/(1-Percentile)"); err != nil {
			return herr.NewIoError(err)
		}
	}

	it := h.Percentiles(ticksPerHalfDistance)
	for it.Next() {
		fraction := it.Percentile() / 100
		inverse := math.Inf(1)
		if fraction < 1 {
			inverse = 1 / (1 - fraction)
		}
		value := float64(it.Value()) / valueScale

		var err error
		if csv {
			_, err = fmt.Fprintf(sink, "%.3f,%.12f,%d,%.2f\n", value, fraction, it.TotalCountToThisValue(), inverse)
		} else {
			_, err = fmt.Fprintf(sink, "%12.3f %16.12f %10d %14.2f\n", value, fraction, it.TotalCountToThisValue(), inverse)
		}
		if err != nil {
			return herr.NewIoError(err)
		}
	}
	if it.Err() != nil {
		return it.Err()
	}

	if csv {
		return nil
	}

	mean := h.Mean() / valueScale
	stdDev := h.StdDeviation() / valueScale
	max := float64(h.Max()) / valueScale
	_, err := fmt.Fprintf(sink, "#[Mean    = %12.3f, StdDeviation   = %12.3f]\n#[Max     = %12.3f, Total count    = %12d]\n#[Buckets = %12d, SubBuckets     = %12d]\n",
		mean, stdDev, max, h.TotalCount(), h.mapping.BucketCount, h.mapping.SubBucketCount)
	if err != nil {
		return herr.NewIoError(err)
	}
	return nil
}
