package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheable(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/validator-system-PROMPT", true},
		{"https://cdn.example.com/greeting.txt", true},
		{"https://cdn.example.com/phonemes.json", true},
		{"https://cdn.example.com/affirmation_th", true},
		{"https://cdn.example.com/audio/clip.wav", false},
		{"https://api.example.com/search", false},
	}
	for _, tt := range tests {
		if got := Cacheable(tt.url); got != tt.want {
			t.Errorf("Cacheable(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestTextCachesTemplateURLs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("You are a helpful assistant."))
	}))
	defer srv.Close()

	c := New()
	url := srv.URL + "/system-prompt.txt"

	for i := 0; i < 3; i++ {
		text, err := c.Text(context.Background(), url)
		if err != nil {
			t.Fatalf("Text: %v", err)
		}
		if text != "You are a helpful assistant." {
			t.Fatalf("text = %q", text)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestTextDoesNotCacheOtherURLs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := New()
	url := srv.URL + "/audio/blob"

	for i := 0; i < 2; i++ {
		if _, err := c.Text(context.Background(), url); err != nil {
			t.Fatalf("Text: %v", err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2 (no caching)", got)
	}
}

func TestTextExpiryRefetches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("v"))
	}))
	defer srv.Close()

	c := New()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	url := srv.URL + "/template"
	if _, err := c.Text(context.Background(), url); err != nil {
		t.Fatal(err)
	}

	// Past the TTL the entry is dead; the next read must block on upstream.
	clock = clock.Add(DefaultTTL + time.Second)
	if _, err := c.Text(context.Background(), url); err != nil {
		t.Fatal(err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2 after expiry", got)
	}
}

func TestTextEarlyRefreshServesStale(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if hits.Load() == 1 {
			w.Write([]byte("old"))
		} else {
			w.Write([]byte("new"))
		}
	}))
	defer srv.Close()

	c := New()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	url := srv.URL + "/prompt"
	if _, err := c.Text(context.Background(), url); err != nil {
		t.Fatal(err)
	}

	// Inside the early-refresh window the stale value is returned
	// immediately while the background refresh runs.
	clock = clock.Add(DefaultEarlyRefresh + time.Second)
	text, err := c.Text(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	if text != "old" {
		t.Errorf("text = %q, want stale %q", text, "old")
	}

	// Wait for the background refresh to land.
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() < 2 {
		t.Fatal("background refresh never fired")
	}
}

func TestTextUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New()
	if _, err := c.Text(context.Background(), srv.URL+"/prompt"); err == nil {
		t.Fatal("expected error for 500 upstream")
	}
}
