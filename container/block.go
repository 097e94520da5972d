package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/justapithecus/sieve/types"
)

// Block header layout. Blocks are gzip members whose FEXTRA field starts with
// an "SB" subfield holding the total compressed member size, little-endian.
const (
	gzipID1   = 0x1f
	gzipID2   = 0x8b
	gzipCM    = 8
	gzipFlagX = 0x04

	blockSubfieldLen = 4
	blockExtraLen    = 4 + blockSubfieldLen
	// BlockHeaderSize is the fixed prefix read to discover a block's size.
	BlockHeaderSize = 12 + blockExtraLen
	blockSizeOffset = 16
	// gzip trailer is CRC32 + ISIZE.
	gzipTrailerSize = 8
)

var blockSubfieldID = [2]byte{'S', 'B'}

// isBlockMagic reports whether b starts with the gzip magic.
func isBlockMagic(b []byte) bool {
	return len(b) >= 2 && b[0] == gzipID1 && b[1] == gzipID2
}

// encodeBlock compresses frames into one gzip member carrying its own size.
func encodeBlock(frames []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create block writer: %w", err)
	}

	extra := make([]byte, blockExtraLen)
	extra[0], extra[1] = blockSubfieldID[0], blockSubfieldID[1]
	binary.LittleEndian.PutUint16(extra[2:4], blockSubfieldLen)
	gz.Header.Extra = extra

	if _, err := gz.Write(frames); err != nil {
		return nil, fmt.Errorf("failed to compress block: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish block: %w", err)
	}

	out := buf.Bytes()
	if len(out) < BlockHeaderSize || !bytes.Equal(out[12:14], blockSubfieldID[:]) {
		return nil, errors.New("block header missing size subfield")
	}
	binary.LittleEndian.PutUint32(out[blockSizeOffset:blockSizeOffset+4], uint32(len(out)))
	return out, nil
}

// parseBlockHeader validates a block header and returns the member size.
func parseBlockHeader(h []byte) (int64, error) {
	if len(h) < BlockHeaderSize {
		return 0, errors.New("short block header")
	}
	if h[0] != gzipID1 || h[1] != gzipID2 || h[2] != gzipCM {
		return 0, errors.New("not a gzip member")
	}
	if h[3]&gzipFlagX == 0 {
		return 0, errors.New("block has no extra field")
	}
	if xlen := binary.LittleEndian.Uint16(h[10:12]); xlen < blockExtraLen {
		return 0, fmt.Errorf("extra field too short: %d", xlen)
	}
	if h[12] != blockSubfieldID[0] || h[13] != blockSubfieldID[1] {
		return 0, errors.New("block has no size subfield")
	}
	if slen := binary.LittleEndian.Uint16(h[14:16]); slen != blockSubfieldLen {
		return 0, fmt.Errorf("size subfield has length %d", slen)
	}
	size := int64(binary.LittleEndian.Uint32(h[blockSizeOffset : blockSizeOffset+4]))
	if size < BlockHeaderSize+gzipTrailerSize {
		return 0, fmt.Errorf("block size %d below minimum", size)
	}
	return size, nil
}

// decodeBlock decompresses one block and decodes every record in it.
func decodeBlock(r io.Reader, offset int64) ([]*types.Record, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, &CorruptionError{
			Pos:  types.Position{Offset: offset},
			Kind: CorruptionBlock,
			Msg:  "failed to open block",
			Err:  err,
		}
	}
	gz.Multistream(false)
	defer gz.Close()

	var records []*types.Record
	dec := NewFrameDecoder(gz)
	for i := 0; ; i++ {
		pos := types.Position{Offset: offset, Index: i}
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			var cerr *CorruptionError
			if errors.As(err, &cerr) {
				cerr.Pos = pos
				if cerr.Kind == CorruptionPartial && !errors.Is(cerr.Err, io.ErrUnexpectedEOF) && !errors.Is(cerr.Err, io.EOF) {
					// Decompression failure rather than a short frame.
					cerr.Kind = CorruptionBlock
				}
				return records, cerr
			}
			return records, err
		}
		rec, err := DecodeRecord(payload, pos)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
