package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// compressedFrameHeaderLength is the two uint32 fields (compressed
// cookie, length of compressed contents) that precede the DEFLATE stream
// in the compressed V2 format (spec §4.6).
const compressedFrameHeaderLength = 8

// EncodeCompressed writes snap's DEFLATE-compressed V2 encoding to w: the
// outer frame is compressed_cookie (uint32), length_of_compressed_contents
// (uint32), then a DEFLATE stream wrapping the uncompressed header+payload
// body that Encode would have produced.
func EncodeCompressed(w io.Writer, snap Snapshot) error {
	var body bytes.Buffer
	if err := Encode(&body, snap); err != nil {
		return err
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("codec: creating deflate writer: %w", err)
	}
	if _, err := fw.Write(body.Bytes()); err != nil {
		return err
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("codec: closing deflate writer: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, CookieV2Compressed); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(compressed.Len())); err != nil {
		return err
	}
	_, err = w.Write(compressed.Bytes())
	return err
}

// DecodeCompressed reconstructs a Snapshot from a DEFLATE-compressed
// V2-encoded stream, inflating the body before delegating to Decode.
func DecodeCompressed(r io.Reader, minBar int64) (Snapshot, error) {
	var cookie, length uint32
	if err := binary.Read(r, binary.LittleEndian, &cookie); err != nil {
		return Snapshot{}, fmt.Errorf("codec: reading compressed cookie: %w", err)
	}
	if cookie != CookieV2Compressed {
		return Snapshot{}, fmt.Errorf("codec: unrecognized compressed cookie 0x%X", cookie)
	}
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return Snapshot{}, fmt.Errorf("codec: reading compressed length: %w", err)
	}

	compressed := make([]byte, length)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return Snapshot{}, fmt.Errorf("codec: reading compressed body: %w", err)
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	return Decode(fr, minBar)
}

// EncodeCompressedBuffer is the buffer-oriented form of EncodeCompressed
// named in spec §6 (encode_into_compressed(buffer)).
func EncodeCompressedBuffer(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeCompressed(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCompressedBuffer is the buffer-oriented form of DecodeCompressed
// named in spec §6 (decode_from_compressed(buffer, min_highest)).
func DecodeCompressedBuffer(buf []byte, minBar int64) (Snapshot, error) {
	return DecodeCompressed(bytes.NewReader(buf), minBar)
}
