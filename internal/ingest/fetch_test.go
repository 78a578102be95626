package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcher_HTTPRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.SetMaxElapsedTime(10 * time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/daily.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q, want payload", body)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetcher_HTTPNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher()
	f.SetMaxElapsedTime(10 * time.Second)

	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want status 404", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls.Load())
	}
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	_, err := NewFetcher().Fetch(context.Background(), "gopher://example.com/data.csv")
	if err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Errorf("err = %v, want unsupported scheme", err)
	}
}
