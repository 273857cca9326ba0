package httpds

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newFastClient(cfg Config) *Client {
	c := NewClient(cfg)
	c.sleep = func(time.Duration) {}
	return c
}

func TestGetRetriesTransientStatus(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "payload")
	}))
	defer srv.Close()

	c := newFastClient(Config{MaxRetries: 3})
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Errorf("body = %q, want payload", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newFastClient(Config{MaxRetries: 2})
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3 (initial + 2 retries)", got)
	}
}

func TestGetDoesNotRetryClientError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newFastClient(Config{MaxRetries: 3})
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (404 is final)", got)
	}
}

func TestHeadParsesLastModified(t *testing.T) {
	t.Parallel()
	want := time.Date(2026, time.August, 23, 6, 15, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.Header().Set("Last-Modified", want.Format(http.TimeFormat))
		w.Header().Set("Content-Length", "123456789")
	}))
	defer srv.Close()

	c := newFastClient(Config{})
	lm, size, err := c.Head(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !lm.Equal(want) {
		t.Errorf("lastModified = %v, want %v", lm, want)
	}
	if size != 123456789 {
		t.Errorf("size = %d, want 123456789", size)
	}
}

func TestHeadMissingLastModifiedIsZeroTime(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newFastClient(Config{})
	lm, _, err := c.Head(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !lm.IsZero() {
		t.Errorf("lastModified = %v, want zero", lm)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newFastClient(Config{})
	if _, err := c.Do(ctx, http.MethodGet, "http://127.0.0.1:1/never"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDuration(time.Second, tc.attempt, 30*time.Second); got != tc.want {
			t.Errorf("backoffDuration(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
