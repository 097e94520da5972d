package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justapithecus/sieve/adapter"
	"github.com/justapithecus/sieve/iox"
)

func testEvent() *adapter.RunCompletedEvent {
	return &adapter.RunCompletedEvent{
		EventType:   adapter.EventTypeRunCompleted,
		RunID:       "run-001",
		Archive:     "capture.sar",
		Mode:        "parallel",
		Workers:     4,
		Outcome:     "completed",
		StoragePath: "out/run-001.jsonl",
		Timestamp:   "2026-10-17T12:00:00Z",
		Processed:   42,
		Entries:     84,
		DurationMs:  1500,
	}
}

// countingServer answers every request with the status returned by status
// and counts requests.
func countingServer(t *testing.T, status func(n int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(status(n))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestPublish_Success(t *testing.T) {
	var received adapter.RunCompletedEvent
	var gotAuth, gotEvent, gotSig string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		gotAuth = r.Header.Get("Authorization")
		gotEvent = r.Header.Get(EventHeader)
		gotSig = r.Header.Get(SignatureHeader)
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer tok"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if received.RunID != "run-001" || received.Entries != 84 {
		t.Errorf("received = %+v", received)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotEvent != adapter.EventTypeRunCompleted {
		t.Errorf("%s = %q", EventHeader, gotEvent)
	}
	if gotSig != "" {
		t.Errorf("unsigned request carried %s = %q", SignatureHeader, gotSig)
	}
}

func TestPublish_Signed(t *testing.T) {
	const secret = "hook-secret"
	verified := make(chan bool, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		verified <- hmac.Equal([]byte(r.Header.Get(SignatureHeader)), []byte(want))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Secret: secret})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !<-verified {
		t.Error("signature did not verify")
	}
}

func TestSign(t *testing.T) {
	a, b := Sign("k", []byte("body")), Sign("k", []byte("body"))
	if a != b || !strings.HasPrefix(a, "sha256=") || len(a) != len("sha256=")+64 {
		t.Errorf("Sign = %q", a)
	}
	if Sign("other", []byte("body")) == a {
		t.Error("different secrets produced the same signature")
	}
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	ts, calls := countingServer(t, func(n int32) int {
		if n < 3 {
			return http.StatusBadGateway
		}
		return http.StatusOK
	})

	a, err := New(Config{URL: ts.URL, Retries: 3, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestPublish_5xxExhaustsRetries(t *testing.T) {
	ts, calls := countingServer(t, func(int32) int { return http.StatusServiceUnavailable })

	a, err := New(Config{URL: ts.URL, Retries: 2, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	err = a.Publish(t.Context(), testEvent())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want StatusError 503", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestPublish_4xxFailsImmediately(t *testing.T) {
	ts, calls := countingServer(t, func(int32) int { return http.StatusUnauthorized })

	a, err := New(Config{URL: ts.URL, Retries: 3, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error for 401")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	ts, _ := countingServer(t, func(int32) int { return http.StatusInternalServerError })

	a, err := New(Config{URL: ts.URL, Retries: 5, Backoff: time.Hour})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err = a.Publish(ctx, testEvent())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "http://x", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}

	a, err := New(Config{URL: "http://x"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.client.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", a.client.Timeout, DefaultTimeout)
	}
}
