package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/sieve/types"
)

func TestFrameDecoder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range [][]byte{[]byte("one"), {}, []byte("three")} {
		if _, err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	dec := NewFrameDecoder(&buf)
	for _, want := range []string{"one", "", "three"} {
		got, err := dec.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("ReadFrame() = %q, want %q", got, want)
		}
	}
	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameDecoder_Errors(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		_, _ = WriteFrame(&buf, []byte("payload"))
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data func() []byte
		kind CorruptionKind
	}{
		{
			name: "partial header",
			data: func() []byte { return valid()[:5] },
			kind: CorruptionPartial,
		},
		{
			name: "partial payload",
			data: func() []byte { return valid()[:FrameHeaderSize+3] },
			kind: CorruptionPartial,
		},
		{
			name: "too large",
			data: func() []byte {
				b := valid()
				binary.BigEndian.PutUint32(b[0:4], MaxPayloadSize+1)
				return b
			},
			kind: CorruptionTooLarge,
		},
		{
			name: "checksum",
			data: func() []byte {
				b := valid()
				b[len(b)-1] ^= 0x01
				return b
			},
			kind: CorruptionChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameDecoder(bytes.NewReader(tt.data())).ReadFrame()
			var cerr *CorruptionError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *CorruptionError, got %T: %v", err, err)
			}
			if cerr.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", cerr.Kind, tt.kind)
			}
		})
	}
}

func TestDecodeRecord_Invalid(t *testing.T) {
	pos := types.Position{Offset: 42}

	tests := []struct {
		name    string
		payload func(t *testing.T) []byte
	}{
		{
			name:    "not msgpack",
			payload: func(*testing.T) []byte { return []byte{0xc1} },
		},
		{
			name: "missing kind",
			payload: func(t *testing.T) []byte {
				b, err := msgpack.Marshal(map[string]any{"body": []byte("x")})
				if err != nil {
					t.Fatal(err)
				}
				return b
			},
		},
		{
			name: "malformed header pair",
			payload: func(t *testing.T) []byte {
				b, err := msgpack.Marshal(map[string]any{
					"kind":    "response",
					"headers": [][]string{{"only-name"}},
				})
				if err != nil {
					t.Fatal(err)
				}
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(tt.payload(t), pos)
			var cerr *CorruptionError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *CorruptionError, got %v", err)
			}
			if cerr.Kind != CorruptionDecode || cerr.Pos != pos {
				t.Errorf("got kind %v at %v", cerr.Kind, cerr.Pos)
			}
		})
	}
}

func TestParseBlockHeader(t *testing.T) {
	block, err := encodeBlock([]byte("frames"), 6)
	if err != nil {
		t.Fatalf("encodeBlock failed: %v", err)
	}
	size, err := parseBlockHeader(block)
	if err != nil {
		t.Fatalf("parseBlockHeader failed: %v", err)
	}
	if size != int64(len(block)) {
		t.Errorf("size = %d, want %d", size, len(block))
	}
	if !isBlockMagic(block) {
		t.Error("block does not start with gzip magic")
	}

	noExtra := append([]byte(nil), block...)
	noExtra[3] &^= gzipFlagX
	if _, err := parseBlockHeader(noExtra); err == nil {
		t.Error("expected error for block without extra field")
	}
}

func TestCorruptionKind_String(t *testing.T) {
	tests := map[CorruptionKind]string{
		CorruptionPartial:  "partial",
		CorruptionTooLarge: "too_large",
		CorruptionChecksum: "checksum",
		CorruptionDecode:   "decode",
		CorruptionBlock:    "block",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(kind), got, want)
		}
	}
}
