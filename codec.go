package hdrhistogram

import (
	"encoding/binary"
	"fmt"

	"github.com/hdrhistogram/hdrhistogram-go/codec"
	"github.com/hdrhistogram/hdrhistogram-go/herr"
)

func (h *Histogram) snapshot() codec.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return codec.Snapshot{
		LowestDiscernibleValue: h.mapping.LowestDiscernibleValue,
		HighestTrackableValue:  h.mapping.HighestTrackableValue,
		SignificantFigures:     h.mapping.SignificantFigures,
		Counts:                 h.store.Snapshot(),
	}
}

// Encode returns h's V2 binary encoding (spec §4.6): a 40-byte header
// followed by the run-length ZigZag LEB128 counts payload. It fails with
// herr.NegativeCount if a counter is negative, which per spec §7 is only
// reachable through memory corruption.
func (h *Histogram) Encode() ([]byte, error) {
	buf, err := codec.EncodeBuffer(h.snapshot())
	if err != nil {
		return nil, wrapEncodeError(err)
	}
	return buf, nil
}

// EncodeCompressed returns h's DEFLATE-compressed V2 binary encoding.
func (h *Histogram) EncodeCompressed() ([]byte, error) {
	buf, err := codec.EncodeCompressedBuffer(h.snapshot())
	if err != nil {
		return nil, wrapEncodeError(err)
	}
	return buf, nil
}

// EncodeInto writes h's V2 binary encoding into buf and returns the
// number of bytes written, failing if buf is too small.
func (h *Histogram) EncodeInto(buf []byte) (int, error) {
	encoded, err := h.Encode()
	if err != nil {
		return 0, err
	}
	return copyIntoBuffer(buf, encoded)
}

// EncodeIntoCompressed writes h's DEFLATE-compressed V2 binary encoding
// into buf and returns the number of bytes written.
func (h *Histogram) EncodeIntoCompressed(buf []byte) (int, error) {
	encoded, err := h.EncodeCompressed()
	if err != nil {
		return 0, err
	}
	return copyIntoBuffer(buf, encoded)
}

func copyIntoBuffer(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, herr.NewIoError(fmt.Errorf("buffer of %d bytes too small for %d-byte encoding", len(dst), len(src)))
	}
	return copy(dst, src), nil
}

// wrapEncodeError surfaces the codec package's only possible encode
// failure (a negative counter, per spec §7) as herr.NegativeCount.
func wrapEncodeError(err error) error {
	if err == nil {
		return nil
	}
	return herr.NewNegativeCountf("%s", err.Error())
}

// Decode reconstructs a Histogram from a V2-encoded buffer, per spec §4.6:
// the decoded configuration uses max(header.HighestTrackableValue, minBar)
// so the caller can guarantee the result can hold at least minBar. The
// reconstructed histogram is always the Long (64-bit, single-writer)
// variant.
func Decode(buf []byte, minBar int64) (*Histogram, error) {
	snap, err := codec.DecodeBuffer(buf, minBar)
	if err != nil {
		return nil, herr.NewFormatError("%s", err.Error())
	}
	return histogramFromSnapshot(snap)
}

// DecodeCompressed reconstructs a Histogram from a DEFLATE-compressed
// V2-encoded buffer.
func DecodeCompressed(buf []byte, minBar int64) (*Histogram, error) {
	snap, err := codec.DecodeCompressedBuffer(buf, minBar)
	if err != nil {
		return nil, herr.NewFormatError("%s", err.Error())
	}
	return histogramFromSnapshot(snap)
}

// DecodeAuto reconstructs a Histogram from a V2-encoded buffer whose
// compression is not known ahead of time, per spec §4.7's V0/V1
// back-compat requirement that an interval-log reader accept both
// compressed and uncompressed per-line payloads. It sniffs the leading
// 4-byte cookie and dispatches to DecodeCompressed when it is
// codec.CookieV2Compressed, or to the plain Decode otherwise. Decode
// accepts only the uncompressed V2 cookie, so a payload carrying any other
// cookie (including the legacy V0/V1 ones) fails with herr.FormatError.
func DecodeAuto(buf []byte, minBar int64) (*Histogram, error) {
	if len(buf) < 4 {
		return nil, herr.NewFormatError("buffer of %d bytes too short to hold a cookie", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[:4]) == codec.CookieV2Compressed {
		return DecodeCompressed(buf, minBar)
	}
	return Decode(buf, minBar)
}

func histogramFromSnapshot(snap codec.Snapshot) (*Histogram, error) {
	h, err := NewLong(snap.LowestDiscernibleValue, snap.HighestTrackableValue, snap.SignificantFigures)
	if err != nil {
		return nil, herr.NewFormatError("decoded configuration is invalid: %s", err.Error())
	}
	for idx, count := range snap.Counts {
		h.store.Set(int32(idx), count)
	}
	h.ReestablishTotalCount()
	h.minNonZeroValue = maxInt64
	h.maxValue = 0
	for idx, count := range snap.Counts {
		if count == 0 {
			continue
		}
		v := h.mapping.ValueFromFlatIndex(int32(idx))
		if v > 0 && v < h.minNonZeroValue {
			h.minNonZeroValue = v
		}
		if v > h.maxValue {
			h.maxValue = v
		}
	}
	return h, nil
}
