package types //nolint:revive // types is a valid package name

import "testing"

func TestHeaders_LookupCaseInsensitiveFirstWins(t *testing.T) {
	h := Headers{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "content-type", Value: "application/json"},
		{Name: "WARC-Target-URI", Value: "https://example.com/"},
	}

	if got := h.Get("CONTENT-TYPE"); got != "text/html" {
		t.Errorf("Get = %q, want %q", got, "text/html")
	}
	if _, ok := h.Lookup("X-Missing"); ok {
		t.Error("Lookup of missing header reported present")
	}

	rec := &Record{Headers: h}
	if got := rec.TargetURI(); got != "https://example.com/" {
		t.Errorf("TargetURI = %q", got)
	}
}

func TestPosition_Less(t *testing.T) {
	tests := []struct {
		a, b Position
		want bool
	}{
		{Position{Offset: 10}, Position{Offset: 20}, true},
		{Position{Offset: 20}, Position{Offset: 10}, false},
		{Position{Offset: 10, Index: 1}, Position{Offset: 10, Index: 2}, true},
		{Position{Offset: 10, Index: 2}, Position{Offset: 10, Index: 2}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.want {
			t.Errorf("%v.Less(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSegment_Contains(t *testing.T) {
	seg := Segment{Index: 0, Start: 100, End: 200}
	if !seg.Contains(Position{Offset: 100}) {
		t.Error("start offset must be contained")
	}
	if seg.Contains(Position{Offset: 200}) {
		t.Error("end offset must be excluded")
	}
	if seg.Len() != 100 {
		t.Errorf("Len = %d, want 100", seg.Len())
	}
}

func TestRunMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    RunMeta
		wantErr bool
	}{
		{"valid parallel", RunMeta{RunID: "r1", Mode: ModeParallel, Workers: 4}, false},
		{"valid sequential", RunMeta{RunID: "r1", Mode: ModeSequential}, false},
		{"empty run id", RunMeta{Mode: ModeParallel}, true},
		{"bad mode", RunMeta{RunID: "r1", Mode: "fast"}, true},
		{"negative workers", RunMeta{RunID: "r1", Mode: ModeParallel, Workers: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
