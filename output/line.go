// Package output provides byte-stream and SQLite sinks for drained entries.
package output

import (
	"encoding/json"

	"github.com/justapithecus/sieve/types"
)

// Line is the JSON-lines form of one entry.
// Data holds the entry payload verbatim when it is valid JSON; other payloads
// (for example msgpack) are carried base64-encoded in DataB64.
type Line struct {
	Stage   string          `json:"stage"`
	Pos     types.Position  `json:"pos"`
	Data    json.RawMessage `json:"data,omitempty"`
	DataB64 []byte          `json:"data_b64,omitempty"`
}

// NewLine converts an entry to its line form.
func NewLine(e *types.Entry) Line {
	l := Line{Stage: e.Stage, Pos: e.Pos}
	if len(e.Data) > 0 && json.Valid(e.Data) {
		l.Data = json.RawMessage(e.Data)
	} else {
		l.DataB64 = e.Data
	}
	return l
}

// Entry converts a line back to an entry.
func (l Line) Entry() *types.Entry {
	data := []byte(l.Data)
	if len(data) == 0 {
		data = l.DataB64
	}
	return &types.Entry{Stage: l.Stage, Pos: l.Pos, Data: data}
}
