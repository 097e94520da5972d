package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/sieve/types"
)

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.RunMeta{RunID: "run-1", Archive: "/data/a.sv", Mode: types.ModeParallel, Workers: 4}
	logger := NewLoggerWithWriter(meta, &buf, zapcore.DebugLevel)

	logger.Info("segment drained", map[string]any{"segment": 3})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
	}
	want := map[string]any{
		"level":   "info",
		"message": "segment drained",
		"run_id":  "run-1",
		"archive": "/data/a.sv",
		"mode":    "parallel",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
	if entry["segment"] != float64(3) {
		t.Errorf("segment = %v, want 3", entry["segment"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(nil, &buf, zapcore.WarnLevel)

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	logger.Warn("shown", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "shown") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestLogger_NilIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("nothing", nil)
	logger.With(map[string]any{"a": 1}).Error("nothing", nil)
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync() = %v", err)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&types.RunMeta{RunID: "r"}, &buf, zapcore.DebugLevel)

	logger.With(map[string]any{"worker": 2}).Debug("start", map[string]any{"segment": 1})

	out := buf.String()
	for _, want := range []string{`"worker":2`, `"segment":1`, `"message":"start"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		format  Format
		want    string
		wantErr bool
	}{
		{"", `"message":"hello"`, false},
		{FormatJSON, `"message":"hello"`, false},
		{FormatConsole, "hello\t{\"n\": 1}", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(nil, Options{Level: zapcore.InfoLevel, Format: tt.format, Output: &buf})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			logger.Info("hello", map[string]any{"n": 1})
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q missing %q", buf.String(), tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	if err != nil || lvl != zapcore.WarnLevel {
		t.Errorf("ParseLevel(warn) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
