package pipeline_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/justapithecus/sieve/container"
	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

// testRecord builds record i. Every fifth record is a request; responses with
// i%11 == 3 carry an unparseable status line so the status stage fails.
func testRecord(i int) *types.Record {
	rec := &types.Record{
		Kind: types.KindResponse,
		Headers: types.Headers{
			{Name: "WARC-Target-URI", Value: fmt.Sprintf("https://host%d.example.com/p/%d", i%9, i)},
			{Name: "Content-Type", Value: "text/html"},
		},
		Body: []byte(fmt.Sprintf("HTTP/1.1 %d OK\r\n\r\nbody-%d", 200+(i%3)*100, i)),
	}
	switch {
	case i%5 == 4:
		rec.Kind = types.KindRequest
		rec.Body = []byte("GET / HTTP/1.1\r\n\r\n")
	case i%11 == 3:
		rec.Body = []byte("garbage")
	}
	return rec
}

// failingRecords counts records testChain fails on among the first n.
func failingRecords(n int) int64 {
	var failed int64
	for i := range n {
		if i%5 != 4 && i%11 == 3 {
			failed++
		}
	}
	return failed
}

// writeArchive writes n records and returns the path and record positions.
func writeArchive(t *testing.T, n int, opts ...container.WriterOption) (string, []types.Position) {
	t.Helper()
	var buf bytes.Buffer
	w := container.NewWriter(&buf, opts...)
	positions := make([]types.Position, 0, n)
	for i := range n {
		pos, err := w.Append(testRecord(i))
		if err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
		positions = append(positions, pos)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "archive.sv")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path, positions
}

func openArchive(t *testing.T, path string) *container.Archive {
	t.Helper()
	a, err := container.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func testChain(t *testing.T) *stage.Chain {
	t.Helper()
	chain, err := stage.NewChain(
		stage.Stage{Name: "responses", Processor: stage.NewKindFilter(types.KindResponse), Writer: stage.JSONWriter{}},
		stage.Stage{Name: "status", Processor: stage.NewStatusFilter(), Writer: stage.MsgpackWriter{}},
		stage.Stage{Name: "digest", Processor: stage.Digest{}, Writer: stage.JSONWriter{}},
	)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}
	return chain
}

// dump renders sink entries for comparison.
func dump(entries []*types.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = fmt.Sprintf("%s@%s:%x", e.Stage, e.Pos, e.Data)
	}
	return out
}

func equalDumps(t *testing.T, got, want []*types.Entry) {
	t.Helper()
	g, w := dump(got), dump(want)
	if len(g) != len(w) {
		t.Fatalf("got %d entries, want %d", len(g), len(w))
	}
	for i := range g {
		if g[i] != w[i] {
			t.Fatalf("entry %d differs:\n got  %s\n want %s", i, g[i], w[i])
		}
	}
}

// distinctRecords counts the records that produced the given entries.
func distinctRecords(entries []*types.Entry) int {
	seen := make(map[types.Position]bool)
	for _, e := range entries {
		seen[e.Pos] = true
	}
	return len(seen)
}

func newSink() *policy.StubSink {
	return policy.NewStubSink()
}
