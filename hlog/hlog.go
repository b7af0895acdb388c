// Package hlog implements the interval-log text format of spec §4.7: a
// line-oriented log of per-interval histogram snapshots, each stored as a
// base64'd V2 (optionally DEFLATE-compressed) payload alongside its
// timestamp, interval length, and max value. It mirrors the teacher's
// afero.Fs-parameterized file helpers (cmd/config.go) for testable I/O and
// logrus-based structured reporting of recoverable faults (cmd/common.go),
// and uses null.String for the optional per-record tag the way the teacher
// uses null.* for optional wire fields (cmd/config.go's null.Bool fields).
package hlog

import (
	"time"

	"github.com/spf13/afero"
	null "gopkg.in/guregu/null.v3"
)

// FormatVersion identifies the text directive written at the top of a log
// (spec §4.7: "#[Histogram log format version 1.2]").
const FormatVersion = "1.2"

// Record is one decoded data line of an interval log.
type Record struct {
	Tag              null.String
	StartTimestampMs int64
	IntervalLengthMs int64
	MaxValue         int64
	Histogram        HistogramCodec
}

// HistogramCodec is the narrow surface hlog needs from a decoded/encoded
// histogram, satisfied by *hdrhistogram.Histogram. Declaring it here
// instead of importing the root package avoids an import cycle (the root
// package does not need to depend on hlog) while still letting hlog's
// Reader/Writer operate on real histograms.
type HistogramCodec interface {
	EncodeCompressed() ([]byte, error)
	TotalCount() int64
	Max() int64
	SetStartTimestampMs(int64)
	SetEndTimestampMs(int64)
}

// Decoder reconstructs a histogram from a per-line payload buffer, with a
// floor on HighestTrackableValue (spec §4.6's min_bar). The buffer may be
// an uncompressed or DEFLATE-compressed V2 payload (spec §4.7's back-compat
// requirement); hdrhistogram.DecodeAuto sniffs the leading cookie and
// dispatches accordingly, rejecting any other cookie, and is the
// production argument to NewReader.
type Decoder func(buf []byte, minBar int64) (HistogramCodec, error)

// OpenFile opens path for reading on fs, returning an *afero.File the
// way the teacher's cmd/config.go opens its config file through an
// injected afero.Fs rather than the os package directly, so tests can
// substitute afero.NewMemMapFs().
func OpenFile(fs afero.Fs, path string) (afero.File, error) {
	return fs.Open(path)
}

// CreateFile creates (or truncates) path for writing on fs.
func CreateFile(fs afero.Fs, path string) (afero.File, error) {
	return fs.Create(path)
}

func millisToSeconds(ms int64) float64 { return float64(ms) / 1000.0 }

func secondsToMillis(s float64) int64 { return int64(s * 1000.0) }

func isoTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
