package lode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/justapithecus/sieve/pipeline"
	"github.com/justapithecus/sieve/types"
)

// RecordKind discriminator values.
const (
	RecordKindEntry = "entry"
	RecordKindRun   = "run"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "run_id", "record_kind"}

// toEntryRecordMap converts an entry to its stored form.
// Data that is valid JSON is stored inline; anything else is stored base64
// encoded under data_b64.
func toEntryRecordMap(e *types.Entry, cfg Config) map[string]any {
	rec := map[string]any{
		"record_kind": RecordKindEntry,
		"day":         cfg.Day,
		"run_id":      cfg.RunID,
		"archive":     cfg.Archive,
		"stage":       e.Stage,
		"offset":      e.Pos.Offset,
		"index":       e.Pos.Index,
	}
	if len(e.Data) > 0 && json.Valid(e.Data) {
		rec["data"] = json.RawMessage(e.Data)
	} else {
		rec["data_b64"] = base64.StdEncoding.EncodeToString(e.Data)
	}
	return rec
}

// toRunRecordMap converts a run file to its stored form. The run file's own
// fields are kept at the top level so the record reads like the --report
// document.
func toRunRecordMap(rf *pipeline.RunFile, cfg Config, completedAt time.Time) (map[string]any, error) {
	raw, err := json.Marshal(rf)
	if err != nil {
		return nil, fmt.Errorf("marshal run file: %w", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run file: %w", err)
	}
	rec["record_kind"] = RecordKindRun
	rec["day"] = cfg.Day
	rec["run_id"] = cfg.RunID
	rec["completed_at"] = completedAt.UTC().Format(time.RFC3339Nano)
	return rec, nil
}

// entryFromRecord converts a stored entry record back into an entry.
func entryFromRecord(rec map[string]any) (*types.Entry, error) {
	e := &types.Entry{
		Stage: toString(rec["stage"]),
		Pos: types.Position{
			Offset: toInt64(rec["offset"]),
			Index:  int(toInt64(rec["index"])),
		},
	}

	if b64, ok := rec["data_b64"].(string); ok {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("entry %s at %s: decode data_b64: %w", e.Stage, e.Pos, err)
		}
		e.Data = data
		return e, nil
	}

	switch v := rec["data"].(type) {
	case nil:
	case json.RawMessage:
		e.Data = []byte(v)
	case []byte:
		e.Data = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("entry %s at %s: encode data: %w", e.Stage, e.Pos, err)
		}
		e.Data = data
	}
	return e, nil
}

// runFileFromRecord converts a stored run record back into a run file.
func runFileFromRecord(rec map[string]any) (*pipeline.RunFile, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal run record: %w", err)
	}
	var rf pipeline.RunFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	return &rf, nil
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts a decoded JSON number to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
