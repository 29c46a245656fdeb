package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/go-cmp/cmp"

	"trawl/internal/conv"
	"trawl/internal/fetch"
	"trawl/internal/scrape"
)

func TestChatGPTCanHandle(t *testing.T) {
	s := NewChatGPT(newTestDeps(t))
	tests := []struct {
		url  string
		want bool
	}{
		{"https://chatgpt.com/share/abc-123", true},
		{"https://chatgpt.com/c/abc-123", true},
		{"https://chat.openai.com/share/abc-123", true},
		{"https://example.com/share/abc-123", false},
		{"https://chatgpt.com/gpts", false},
	}
	for _, tt := range tests {
		if got := s.CanHandle(tt.url); got != tt.want {
			t.Errorf("CanHandle(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestChatGPTExtractID(t *testing.T) {
	s := NewChatGPT(newTestDeps(t))
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://chatgpt.com/share/67d1c189-8586-8004-9b93-3a7dbd3ca435", want: "67d1c189-8586-8004-9b93-3a7dbd3ca435"},
		{url: "https://chatgpt.com/c/conversation-42", want: "conversation-42"},
		{url: "https://chat.openai.com/share/abc", want: "abc"},
		{url: "https://chatgpt.com/pricing", wantErr: true},
	}
	for _, tt := range tests {
		got, err := s.ExtractID(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ExtractID(%q): expected error, got %q", tt.url, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractID(%q): %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestChatGPTNormalizeMapping(t *testing.T) {
	s := NewChatGPT(newTestDeps(t))
	raw := scrape.Raw{
		"title": "Planning a trip",
		"raw_data": map[string]any{
			"mapping": map[string]any{
				"root": map[string]any{"id": "root"},
				"n-sys": map[string]any{
					"message": map[string]any{
						"author":      map[string]any{"role": "system"},
						"content":     map[string]any{"content_type": "text", "parts": []any{"You are a travel agent."}},
						"create_time": 50.0,
					},
				},
				"n-user": map[string]any{
					"message": map[string]any{
						"author":      map[string]any{"role": "user"},
						"content":     map[string]any{"content_type": "text", "parts": []any{"Where should we go?"}},
						"create_time": 100.0,
					},
				},
				"n-asst": map[string]any{
					"message": map[string]any{
						"author":      "assistant",
						"content":     map[string]any{"content_type": "text", "parts": []any{"Somewhere warm."}},
						"create_time": 200.0,
					},
				},
			},
		},
	}
	records, err := s.Normalize(raw, "share-1")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].ID != "share-1" {
		t.Errorf("record ID = %q, want share-1", records[0].ID)
	}
	want := conv.Envelope("Planning a trip", "share-1", []conv.Turn{
		{Role: "user", Text: "Where should we go?", Time: 100},
		{Role: "assistant", Text: "Somewhere warm.", Time: 200},
	}, testNow)
	if diff := cmp.Diff(want, records[0].Data); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestChatGPTNormalizeMessages(t *testing.T) {
	s := NewChatGPT(newTestDeps(t))
	raw := scrape.Raw{
		"title": "Fallback transcript",
		"messages": []map[string]any{
			{"role": "user", "text": "First question"},
			{"role": "assistant", "content": "First answer"},
			{"role": "user", "text": "   "},
		},
	}
	records, err := s.Normalize(raw, "share-2")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := conv.Envelope("Fallback transcript", "share-2", []conv.Turn{
		{Role: "user", Text: "First question"},
		{Role: "assistant", Text: "First answer"},
	}, testNow)
	if diff := cmp.Diff(want, records[0].Data); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestChatGPTMessagesFromRenderedHTML(t *testing.T) {
	html := `<html><body>
		<div data-message-author-role="system"><div class="markdown">You are ChatGPT, a large language model.</div></div>
		<div data-message-author-role="user"><div class="markdown prose">How do goroutines differ from OS threads?</div></div>
		<div data-message-author-role="assistant"><div class="markdown">Goroutines are multiplexed onto OS threads by the runtime scheduler.</div></div>
		<div data-message-author-role="assistant"><div class="markdown">short</div></div>
	</body></html>`
	doc, err := parseDoc(html)
	if err != nil {
		t.Fatal(err)
	}
	got := chatgptMessages(doc)
	want := []map[string]any{
		{"role": "user", "text": "How do goroutines differ from OS threads?"},
		{"role": "assistant", "text": "Goroutines are multiplexed onto OS threads by the runtime scheduler."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestChatGPTPlainFetchAlternatingBlocks(t *testing.T) {
	question := strings.Repeat("how does the scheduler work ", 4)
	answer := strings.Repeat("it multiplexes goroutines onto threads ", 4)
	page := `<html><head><title>Shared Conversation</title></head><body>
		<nav>Top navigation bar with many links that should be stripped before extraction.</nav>
		<p>` + question + `</p>
		<p>` + answer + `</p>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	}))
	defer srv.Close()

	deps := newTestDeps(t)
	deps.HTTP = resty.New()
	s := NewChatGPT(deps)

	raw, err := s.Extract(context.Background(), srv.URL, scrape.MethodPlain)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := raw["title"]; got != "Shared Conversation" {
		t.Errorf("title = %v, want Shared Conversation", got)
	}
	want := []map[string]any{
		{"role": "user", "text": strings.TrimSpace(question), "index": 0},
		{"role": "assistant", "text": strings.TrimSpace(answer), "index": 1},
	}
	if diff := cmp.Diff(want, raw["messages"]); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestChatGPTManagedOrdersByMessageIndex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/straightforward_understanding~chatgpt-conversation-scraper/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": map[string]any{
			"id": "run-1", "status": "RUNNING", "defaultDatasetId": "ds-1",
		}})
	})
	mux.HandleFunc("GET /v2/actor-runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": map[string]any{
			"id": "run-1", "status": "SUCCEEDED", "defaultDatasetId": "ds-1",
		}})
	})
	mux.HandleFunc("GET /v2/datasets/ds-1/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"role": "assistant", "content": "Second", "messageIndex": 1, "conversationTitle": "Managed Run"},
			{"role": "user", "content": "First", "messageIndex": 0},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	deps := newTestDeps(t)
	deps.Creds.Explicit = "tok-1"
	deps.Apify = func(token string) *fetch.Apify {
		return fetch.NewApify(resty.New(), srv.URL, token, time.Millisecond, nil)
	}
	s := NewChatGPT(deps)

	raw, err := s.Extract(context.Background(), "https://chatgpt.com/share/abc", scrape.MethodManaged)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := raw["title"]; got != "Managed Run" {
		t.Errorf("title = %v, want Managed Run", got)
	}
	want := []map[string]any{
		{"role": "user", "text": "First", "content": "First"},
		{"role": "assistant", "text": "Second", "content": "Second"},
	}
	if diff := cmp.Diff(want, raw["messages"]); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestChatGPTManagedWithoutToken(t *testing.T) {
	deps := newTestDeps(t)
	s := NewChatGPT(deps)
	_, err := s.Extract(context.Background(), "https://chatgpt.com/share/abc", scrape.MethodManaged)
	if err == nil || !strings.Contains(err.Error(), "apify api token required") {
		t.Errorf("expected missing-token error, got %v", err)
	}
}

func TestChatGPTProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("managed with token", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Creds.Explicit = "tok"
		avail, _ := NewChatGPT(deps).Probe(ctx, scrape.MethodManaged)
		if avail != scrape.Available {
			t.Errorf("availability = %v, want available", avail)
		}
	})

	t.Run("managed token only via op", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Creds.LookPath = func(string) (string, error) { return "/usr/bin/op", nil }
		avail, _ := NewChatGPT(deps).Probe(ctx, scrape.MethodManaged)
		if avail != scrape.InstallableOnDemand {
			t.Errorf("availability = %v, want installable-on-demand", avail)
		}
	})

	t.Run("managed without token", func(t *testing.T) {
		deps := newTestDeps(t)
		avail, reason := NewChatGPT(deps).Probe(ctx, scrape.MethodManaged)
		if avail != scrape.Unavailable {
			t.Errorf("availability = %v, want unavailable", avail)
		}
		if reason != missingTokenMsg {
			t.Errorf("reason = %q, want token hint", reason)
		}
	})

	t.Run("browser not configured", func(t *testing.T) {
		deps := newTestDeps(t)
		avail, _ := NewChatGPT(deps).Probe(ctx, scrape.MethodBrowser)
		if avail != scrape.Unavailable {
			t.Errorf("availability = %v, want unavailable", avail)
		}
	})

	t.Run("browser with executable", func(t *testing.T) {
		deps := newTestDeps(t)
		exe := filepath.Join(t.TempDir(), "chromium")
		if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		deps.Browser = fetch.NewBrowser(fetch.BrowserOptions{ExecPath: exe}, nil)
		avail, _ := NewChatGPT(deps).Probe(ctx, scrape.MethodBrowser)
		if avail != scrape.Available {
			t.Errorf("availability = %v, want available", avail)
		}
	})

	t.Run("plain always available", func(t *testing.T) {
		avail, _ := NewChatGPT(newTestDeps(t)).Probe(ctx, scrape.MethodPlain)
		if avail != scrape.Available {
			t.Errorf("availability = %v, want available", avail)
		}
	})
}
