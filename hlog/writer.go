package hlog

import (
	"encoding/base64"
	"fmt"
	"io"

	null "gopkg.in/guregu/null.v3"

	"github.com/hdrhistogram/hdrhistogram-go/herr"
)

// WritableHistogram is what Writer needs from a histogram: its own
// encoding plus the host-set timestamps/max that go into the data line.
// *hdrhistogram.Histogram satisfies it.
type WritableHistogram interface {
	HistogramCodec
	StartTimestampMs() int64
	EndTimestampMs() int64
}

// Writer serializes a sequence of histograms as a spec §4.7 V2 interval
// log. The scoped acquisition of the underlying io.Writer (e.g. an
// afero-opened file) is the caller's responsibility; Writer only ever
// appends lines and never holds the writer open across calls, so a flush
// on every exit path reduces to "the caller's Close/Sync runs," matching
// spec §5's "guarantee flush on all exit paths" for log sinks.
type Writer struct {
	w             io.Writer
	wroteHeader   bool
	haveStartTime bool
	startTimeMs   int64
	haveBaseTime  bool
	baseTimeMs    int64
}

// NewWriter wraps w. The first call to Write establishes the log's
// #[StartTime: ...] directive from that histogram's own StartTimestampMs,
// per spec §4.7/SPEC_FULL supplemented feature 5: callers do not need to
// pass an absolute start time up front.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// SetBaseTime records an explicit #[BaseTime: ...] directive. It is written
// as part of the log header, so it only takes effect when called before
// the first Write. Optional; absent BaseTime is treated as zero
// by readers (spec §4.7 V0/V1 back-compat).
func (lw *Writer) SetBaseTime(ms int64) {
	lw.haveBaseTime = true
	lw.baseTimeMs = ms
}

func (lw *Writer) writeLine(format string, args ...any) error {
	_, err := fmt.Fprintf(lw.w, format+"\n", args...)
	if err != nil {
		return herr.NewIoError(err)
	}
	return nil
}

func (lw *Writer) writeHeaderIfNeeded(startTimestampMs int64) error {
	if lw.wroteHeader {
		return nil
	}
	lw.wroteHeader = true
	lw.haveStartTime = true
	lw.startTimeMs = startTimestampMs

	if err := lw.writeLine("#[Histogram log format version %s]", FormatVersion); err != nil {
		return err
	}
	if err := lw.writeLine("#[StartTime: %.3f (%s)]", millisToSeconds(startTimestampMs), isoTimestamp(startTimestampMs)); err != nil {
		return err
	}
	if lw.haveBaseTime {
		if err := lw.writeLine("#[BaseTime: %.3f (%s)]", millisToSeconds(lw.baseTimeMs), isoTimestamp(lw.baseTimeMs)); err != nil {
			return err
		}
	}
	return lw.writeLine(`"StartTimestamp","Interval_Length","Interval_Max","Interval_Compressed_Histogram"`)
}

// Write appends one data line encoding h's current state. tag is optional;
// pass null.String{} (invalid) to omit the "Tag=..." column.
func (lw *Writer) Write(h WritableHistogram, tag null.String) error {
	if err := lw.writeHeaderIfNeeded(h.StartTimestampMs()); err != nil {
		return err
	}

	encoded, err := h.EncodeCompressed()
	if err != nil {
		return err
	}
	payload := base64.StdEncoding.EncodeToString(encoded)

	startSeconds := millisToSeconds(h.StartTimestampMs() - lw.startTimeMs)
	intervalSeconds := millisToSeconds(h.EndTimestampMs() - h.StartTimestampMs())

	if tag.Valid {
		return lw.writeLine(`"Tag=%s",%.3f,%.3f,%d,%s`, tag.String, startSeconds, intervalSeconds, h.Max(), payload)
	}
	return lw.writeLine(`%.3f,%.3f,%d,%s`, startSeconds, intervalSeconds, h.Max(), payload)
}
