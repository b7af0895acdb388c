package hdrhistogram

import (
	"io"

	"github.com/hdrhistogram/hdrhistogram-go/hlog"
)

// NewLogWriter wraps w as a spec §4.7 interval-log V2 writer.
func NewLogWriter(w io.Writer) *hlog.Writer {
	return hlog.NewWriter(w)
}

// NewLogReader wraps r as a spec §4.7 interval-log reader, decoding each
// line's histogram via DecodeAuto (which sniffs the payload's cookie and
// falls back to the uncompressed codec for V0/V1/uncompressed-V2 payloads,
// per spec §4.7's back-compat requirement) and flooring its
// HighestTrackableValue at minBar.
func NewLogReader(r io.Reader, minBar int64) *hlog.Reader {
	return hlog.NewReader(r, func(buf []byte, minBar int64) (hlog.HistogramCodec, error) {
		return DecodeAuto(buf, minBar)
	}, minBar)
}
