package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestRunActorHappyPath(t *testing.T) {
	var polls atomic.Int32
	var startBody string
	var authHeader string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/coder_luffy~free-tweet-scraper/runs", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		startBody = string(body)
		authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"run-1","status":"RUNNING","defaultDatasetId":"ds-1"}}`)
	})
	mux.HandleFunc("GET /v2/actor-runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "RUNNING"
		if polls.Add(1) > 1 {
			status = "SUCCEEDED"
		}
		io.WriteString(w, `{"data":{"id":"run-1","status":"`+status+`","defaultDatasetId":"ds-1"}}`)
	})
	mux.HandleFunc("GET /v2/datasets/ds-1/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"1","text":"hello"},{"id":"2","text":"world"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	apify := NewApify(resty.New(), srv.URL, "tok-123", time.Millisecond, nil)
	items, err := apify.RunActor(context.Background(), "coder_luffy/free-tweet-scraper",
		map[string]any{"urls": []string{"https://x.com/a/status/1"}})
	if err != nil {
		t.Fatalf("RunActor: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0]["text"] != "hello" {
		t.Errorf("items[0][text] = %v, want hello", items[0]["text"])
	}
	if authHeader != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", authHeader)
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(startBody), &input); err != nil {
		t.Fatalf("start body not JSON: %v", err)
	}
	if _, ok := input["urls"]; !ok {
		t.Errorf("start body %q missing urls", startBody)
	}
}

func TestRunActorFailedRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/apidojo~tweet-scraper/runs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"run-9","status":"READY","defaultDatasetId":"ds-9"}}`)
	})
	mux.HandleFunc("GET /v2/actor-runs/run-9", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"run-9","status":"FAILED","defaultDatasetId":"ds-9"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	apify := NewApify(resty.New(), srv.URL, "tok", time.Millisecond, nil)
	_, err := apify.RunActor(context.Background(), "apidojo/tweet-scraper", map[string]any{})
	if err == nil {
		t.Fatal("RunActor succeeded, want failure")
	}
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("err = %v, want *RunError", err)
	}
	if runErr.Status != "FAILED" {
		t.Errorf("Status = %q, want FAILED", runErr.Status)
	}
	if got := err.Error(); !strings.Contains(got, "apify run failed with status: FAILED") {
		t.Errorf("Error() = %q", got)
	}
}

func TestRunActorStopsOnContextCancel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/slow~actor/runs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"run-2","status":"RUNNING","defaultDatasetId":"ds-2"}}`)
	})
	mux.HandleFunc("GET /v2/actor-runs/run-2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"run-2","status":"RUNNING","defaultDatasetId":"ds-2"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	apify := NewApify(resty.New(), srv.URL, "tok", 2*time.Millisecond, nil)
	_, err := apify.RunActor(ctx, "slow/actor", map[string]any{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestRunActorStartRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	apify := NewApify(resty.New(), srv.URL, "bad-token", time.Millisecond, nil)
	_, err := apify.RunActor(context.Background(), "a/b", map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "start actor a/b") {
		t.Fatalf("err = %v, want start actor error", err)
	}
}

func TestRunActorRunTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/slow~actor/runs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"run-3","status":"RUNNING","defaultDatasetId":"ds-3"}}`)
	})
	mux.HandleFunc("GET /v2/actor-runs/run-3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"run-3","status":"RUNNING","defaultDatasetId":"ds-3"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	apify := NewApify(resty.New(), srv.URL, "tok", 2*time.Millisecond, nil).
		WithRunTimeout(25 * time.Millisecond)

	start := time.Now()
	_, err := apify.RunActor(context.Background(), "slow/actor", map[string]any{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("RunActor took %s, want the run timeout to cut polling short", elapsed)
	}
}
