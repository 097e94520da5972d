// Package container reads and writes record containers.
//
// A container is a sequence of self-framed records. Each frame is
//
//	4-byte big-endian payload length | 4-byte big-endian CRC-32C of payload | payload
//
// where the payload is a msgpack-encoded record. A container may instead be a
// sequence of independently decodable gzip members ("blocks"), each holding one
// or more frames. Block boundaries are discoverable without decompression via
// a size subfield in the gzip header, so both layouts can be partitioned into
// segments for parallel reading.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/justapithecus/sieve/types"
)

// Frame size constants.
const (
	// FrameHeaderSize is the size of the length prefix plus checksum.
	FrameHeaderSize = 8
	// MaxPayloadSize is the maximum record payload (256 MiB). It is kept below
	// 0x1f8b0000 so an uncompressed container can never start with the gzip magic.
	MaxPayloadSize = 256 * 1024 * 1024
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CorruptionKind classifies unreadable framing.
type CorruptionKind int

const (
	// CorruptionPartial indicates a truncated frame or block.
	CorruptionPartial CorruptionKind = iota
	// CorruptionTooLarge indicates a frame length exceeding MaxPayloadSize.
	CorruptionTooLarge
	// CorruptionChecksum indicates a payload checksum mismatch.
	CorruptionChecksum
	// CorruptionDecode indicates a payload that is not a valid record.
	CorruptionDecode
	// CorruptionBlock indicates an invalid or undecompressable block.
	CorruptionBlock
)

func (k CorruptionKind) String() string {
	switch k {
	case CorruptionPartial:
		return "partial"
	case CorruptionTooLarge:
		return "too_large"
	case CorruptionChecksum:
		return "checksum"
	case CorruptionDecode:
		return "decode"
	case CorruptionBlock:
		return "block"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// CorruptionError reports framing that cannot be read at a position.
// Offsets past a corruption are unreliable, so readers never resync.
type CorruptionError struct {
	Pos  types.Position
	Kind CorruptionKind
	Msg  string
	Err  error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record corruption at offset %s (%s): %s: %v", e.Pos, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("record corruption at offset %s (%s): %s", e.Pos, e.Kind, e.Msg)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// Offset returns the container offset of the corrupt frame or block.
func (e *CorruptionError) Offset() int64 {
	return e.Pos.Offset
}

// IsCorruption returns true if err is or wraps a *CorruptionError.
func IsCorruption(err error) bool {
	var cerr *CorruptionError
	return errors.As(err, &cerr)
}

// FrameDecoder decodes checksummed, length-prefixed frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame and returns its verified payload.
//
// Errors:
//   - io.EOF: stream ended cleanly on a frame boundary
//   - *CorruptionError: partial, oversized or checksum-mismatched frame
//
// Returned corruption errors carry a zero Pos; callers fill it in.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var header [FrameHeaderSize]byte
	_, err := io.ReadFull(d.reader, header[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &CorruptionError{
			Kind: CorruptionPartial,
			Msg:  "failed to read frame header",
			Err:  err,
		}
	}

	size, sum := parseFrameHeader(header)
	if size > MaxPayloadSize {
		return nil, &CorruptionError{
			Kind: CorruptionTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &CorruptionError{
			Kind: CorruptionPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	if got := crc32.Checksum(payload, castagnoli); got != sum {
		return nil, &CorruptionError{
			Kind: CorruptionChecksum,
			Msg:  fmt.Sprintf("checksum mismatch: header %08x, payload %08x", sum, got),
		}
	}

	return payload, nil
}

// WriteFrame writes payload as a single frame.
func WriteFrame(w io.Writer, payload []byte) (int, error) {
	if len(payload) > MaxPayloadSize {
		return 0, fmt.Errorf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize)
	}

	var header [FrameHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], crc32.Checksum(payload, castagnoli))

	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}

func parseFrameHeader(header [FrameHeaderSize]byte) (size uint32, sum uint32) {
	return binary.BigEndian.Uint32(header[0:4]), binary.BigEndian.Uint32(header[4:8])
}
