package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/sieve/types"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{" jsonl ", FormatJSONL, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	_, err := ParseFormat("xml")
	if err == nil || !strings.Contains(err.Error(), "json, jsonl, table or yaml") {
		t.Errorf("error should list valid formats, got: %v", err)
	}
}

type segmentRow struct {
	Index  int            `json:"index"`
	Pos    types.Position `json:"pos"`
	Bytes  int64          `json:"bytes,omitempty"`
	Secret string         `json:"-"`
	hidden string
}

func render(t *testing.T, format Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewRendererWithWriter(format, true, &buf).Render(data); err != nil {
		t.Fatalf("Render(%s): %v", format, err)
	}
	return buf.String()
}

func TestRender_JSONAndYAML(t *testing.T) {
	data := map[string]string{"key": "value"}
	if got := render(t, FormatJSON, data); !strings.Contains(got, `"key": "value"`) {
		t.Errorf("json output = %s", got)
	}
	if got := render(t, FormatYAML, data); !strings.Contains(got, "key: value") {
		t.Errorf("yaml output = %s", got)
	}
}

func TestRender_JSONL(t *testing.T) {
	rows := []segmentRow{{Index: 0, Bytes: 10}, {Index: 1, Bytes: 20}}
	got := render(t, FormatJSONL, rows)

	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), got)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if first["bytes"] != float64(10) {
		t.Errorf("line 1 = %v", first)
	}

	if got := render(t, FormatJSONL, map[string]int{"n": 1}); got != "{\"n\":1}\n" {
		t.Errorf("non-slice jsonl = %q", got)
	}
}

func TestRender_TableStruct(t *testing.T) {
	got := render(t, FormatTable, segmentRow{Index: 2, Pos: types.Position{Offset: 128, Index: 3}, Secret: "s3cr3t", hidden: "x"})

	for _, want := range []string{"index:", "2", "pos:", types.Position{Offset: 128, Index: 3}.String(), "bytes:"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "s3cr3t") || strings.Contains(got, "hidden") {
		t.Errorf("table shows skipped fields:\n%s", got)
	}
}

func TestRender_TableSlice(t *testing.T) {
	rows := []*segmentRow{{Index: 0, Bytes: 100}, nil, {Index: 2, Bytes: 300}}
	got := render(t, FormatTable, rows)

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 rows:\n%s", len(lines), got)
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, ",") != "index,pos,bytes" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[3], "300") {
		t.Errorf("last row = %q", lines[3])
	}
}

func TestRender_TableValues(t *testing.T) {
	got := render(t, FormatTable, []string{"response", "request"})
	if !strings.HasPrefix(got, "value") || !strings.Contains(got, "request") {
		t.Errorf("scalar slice table = %q", got)
	}
	if got := render(t, FormatTable, []segmentRow{}); !strings.Contains(got, "(no results)") {
		t.Errorf("empty slice = %q", got)
	}
}

func TestRender_TableMapKeysSorted(t *testing.T) {
	got := render(t, FormatTable, map[string]int{"zeta": 1, "alpha": 2, "mid": 3})
	a, m, z := strings.Index(got, "alpha"), strings.Index(got, "mid"), strings.Index(got, "zeta")
	if a < 0 || a > m || m > z {
		t.Errorf("map keys not sorted: %s", got)
	}
}

func TestCellFormatting(t *testing.T) {
	type view struct {
		Started  time.Time         `json:"started"`
		Zero     time.Time         `json:"zero"`
		Took     time.Duration     `json:"took"`
		Failures []string          `json:"failures"`
		Stages   map[string]int    `json:"stages"`
		Headers  map[string]string `json:"headers"`
	}
	got := render(t, FormatTable, view{
		Started: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Took:    1500 * time.Millisecond,
		Stages:  map[string]int{"a": 1, "b": 2},
	})
	for _, want := range []string{"2026-03-01T12:00:00Z", "1.5s", "{2 keys}"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "0001-01-01") {
		t.Errorf("zero time should render empty:\n%s", got)
	}
}

func TestRender_NoColorDoesNotAffectJSON(t *testing.T) {
	var a, b bytes.Buffer
	data := map[string]string{"key": "value"}
	if err := NewRendererWithWriter(FormatJSON, false, &a).Render(data); err != nil {
		t.Fatal(err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &b).Render(data); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Error("--no-color changed json output")
	}
}

func TestRenderer_RenderTUI_Unsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatJSON, true, &bytes.Buffer{})
	if err := r.RenderTUI("segments", nil); err == nil {
		t.Error("expected error for unsupported TUI view")
	}
	if r.Format() != FormatJSON {
		t.Errorf("Format() = %q", r.Format())
	}
}
