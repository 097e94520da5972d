package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// JSONWriter emits one JSON document per value.
type JSONWriter struct{}

// Write marshals value as JSON. Map keys are sorted.
func (JSONWriter) Write(_ context.Context, value any, out *Output) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	out.Append(data)
	return nil
}

// MsgpackWriter emits one msgpack document per value.
type MsgpackWriter struct{}

// Write marshals value as msgpack with sorted map keys so output is deterministic.
func (MsgpackWriter) Write(_ context.Context, value any, out *Output) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("marshal msgpack: %w", err)
	}
	out.Append(buf.Bytes())
	return nil
}
