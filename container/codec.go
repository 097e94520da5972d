package container

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/sieve/types"
)

// wireRecord is the msgpack payload of a frame.
// Headers are encoded as [name, value] pairs to preserve order.
type wireRecord struct {
	Kind    string     `msgpack:"kind"`
	Headers [][]string `msgpack:"headers"`
	Body    []byte     `msgpack:"body"`
}

// EncodeRecord encodes a record into a frame payload.
func EncodeRecord(rec *types.Record) ([]byte, error) {
	wire := wireRecord{
		Kind:    string(rec.Kind),
		Headers: make([][]string, 0, len(rec.Headers)),
		Body:    rec.Body,
	}
	for _, h := range rec.Headers {
		wire.Headers = append(wire.Headers, []string{h.Name, h.Value})
	}

	payload, err := msgpack.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return payload, nil
}

// DecodeRecord decodes a frame payload into a record positioned at pos.
func DecodeRecord(payload []byte, pos types.Position) (*types.Record, error) {
	var wire wireRecord
	if err := msgpack.Unmarshal(payload, &wire); err != nil {
		return nil, &CorruptionError{
			Pos:  pos,
			Kind: CorruptionDecode,
			Msg:  "failed to decode record",
			Err:  err,
		}
	}
	if wire.Kind == "" {
		return nil, &CorruptionError{
			Pos:  pos,
			Kind: CorruptionDecode,
			Msg:  "record has no kind",
		}
	}

	rec := &types.Record{
		Kind:    types.Kind(wire.Kind),
		Headers: make(types.Headers, 0, len(wire.Headers)),
		Body:    wire.Body,
		Pos:     pos,
	}
	for i, pair := range wire.Headers {
		if len(pair) != 2 {
			return nil, &CorruptionError{
				Pos:  pos,
				Kind: CorruptionDecode,
				Msg:  fmt.Sprintf("header %d has %d elements, want 2", i, len(pair)),
			}
		}
		rec.Headers = append(rec.Headers, types.Header{Name: pair[0], Value: pair[1]})
	}
	return rec, nil
}
