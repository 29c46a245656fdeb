package sources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/go-cmp/cmp"

	"trawl/internal/fetch"
	"trawl/internal/scrape"
)

func TestTwitterCanHandle(t *testing.T) {
	s := NewTwitter(newTestDeps(t))
	tests := []struct {
		url  string
		want bool
	}{
		{"https://twitter.com/gopher/status/123", true},
		{"https://x.com/gopher", true},
		{"https://example.com/x", false},
	}
	for _, tt := range tests {
		if got := s.CanHandle(tt.url); got != tt.want {
			t.Errorf("CanHandle(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestIsProfile(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://x.com/gopher", true},
		{"https://twitter.com/gopher/", true},
		{"https://x.com/gopher/status/123", false},
		{"https://example.com/page", false},
	}
	for _, tt := range tests {
		if got := IsProfile(tt.url); got != tt.want {
			t.Errorf("IsProfile(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestTwitterExtractID(t *testing.T) {
	s := NewTwitter(newTestDeps(t))
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://twitter.com/gopher/status/1790000000000000000", want: "1790000000000000000"},
		{url: "https://x.com/gopher/status/42?s=20", want: "42"},
		{url: "https://x.com/gopher", want: "gopher"},
		{url: "https://twitter.com/gopher/", want: "gopher"},
		{url: "https://x.com/", wantErr: true},
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

func TestTwitterNormalizeSingle(t *testing.T) {
	s := NewTwitter(newTestDeps(t))
	raw := scrape.Raw{
		"id":           "1790000000000000000",
		"url":          "https://x.com/gopher/status/1790000000000000000",
		"text":         "Shipping a new release today.",
		"author":       map[string]any{"username": "gopher"},
		"createdAt":    "2024-05-09T08:30:00.000Z",
		"likeCount":    float64(42),
		"retweetCount": float64(7),
		"replyCount":   float64(3),
	}
	records, err := s.Normalize(raw, "1790000000000000000")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	want := map[string]any{
		"source":     "twitter",
		"tweet_id":   "1790000000000000000",
		"username":   "gopher",
		"text":       "Shipping a new release today.",
		"created_at": "2024-05-09T08:30:00.000Z",
		"likes":      int64(42),
		"retweets":   int64(7),
		"replies":    int64(3),
		"url":        "https://x.com/gopher/status/1790000000000000000",
		"scraped_at": testNow.Unix(),
		"raw_data":   map[string]any(raw),
	}
	if diff := cmp.Diff(want, records[0].Data); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestTwitterNormalizeCarriesReferencedContent(t *testing.T) {
	s := NewTwitter(newTestDeps(t))
	refs := []fetch.Reference{{URL: "https://example.com/post", Title: "Post", Body: "body"}}
	raw := scrape.Raw{
		"id":                 "42",
		"text":               "See the link",
		"referenced_content": refs,
	}
	records, err := s.Normalize(raw, "42")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	got, ok := records[0].Data["referenced_content"].([]fetch.Reference)
	if !ok || len(got) != 1 || got[0].Title != "Post" {
		t.Errorf("referenced_content = %v, want the fetched reference", records[0].Data["referenced_content"])
	}
}

func TestTwitterNormalizeProfileFanOut(t *testing.T) {
	s := NewTwitter(newTestDeps(t))
	raw := scrape.Raw{
		"is_profile": true,
		"url":        "https://x.com/gopher",
		"tweets": []map[string]any{
			{"id": "111", "text": "First"},
			{"text": "Second", "url": "https://x.com/gopher/status/222"},
			{"text": "Third"},
		},
	}
	records, err := s.Normalize(raw, "gopher")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
		if r.Data["tweet_id"] != r.ID {
			t.Errorf("record %s: tweet_id = %v", r.ID, r.Data["tweet_id"])
		}
		if r.Data["source"] != "twitter" {
			t.Errorf("record %s: source = %v", r.ID, r.Data["source"])
		}
	}
	if diff := cmp.Diff([]string{"111", "222", "unknown_2"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	// Tweets without their own timestamp inherit the scrape time.
	if got := records[2].Data["created_at"]; got != testNow.Unix() {
		t.Errorf("created_at = %v, want %d", got, testNow.Unix())
	}
}

func TestTwitterManagedSingleTweetFetchesReferences(t *testing.T) {
	article := `<html><head><title>Linked Article</title></head><body><main><p>` +
		strings.Repeat("The linked page has plenty of readable content. ", 5) +
		`</p></main></body></html>`

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("POST /v2/acts/coder_luffy~free-tweet-scraper/runs", func(w http.ResponseWriter, r *http.Request) {
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
		writeJSON(w, []map[string]any{{
			"id":   "123",
			"text": "Worth a read",
			"entities": map[string]any{
				"urls": []any{map[string]any{"expanded_url": srvURL + "/article"}},
			},
		}})
	})
	mux.HandleFunc("GET /article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, article)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	deps := newTestDeps(t)
	deps.Creds.Explicit = "tok-1"
	deps.HTTP = resty.New()
	deps.Apify = func(token string) *fetch.Apify {
		return fetch.NewApify(resty.New(), srv.URL, token, time.Millisecond, nil)
	}
	s := NewTwitter(deps)

	raw, err := s.Extract(context.Background(), "https://x.com/gopher/status/123", scrape.MethodManaged)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	refs, ok := raw["referenced_content"].([]fetch.Reference)
	if !ok || len(refs) != 1 {
		t.Fatalf("referenced_content = %v, want one reference", raw["referenced_content"])
	}
	if refs[0].Title != "Linked Article" {
		t.Errorf("reference title = %q, want Linked Article", refs[0].Title)
	}
	if !strings.Contains(refs[0].Body, "plenty of readable content") {
		t.Errorf("reference body missing article text: %q", refs[0].Body)
	}
}

func TestTwitterProfileFallsBackToPaidActor(t *testing.T) {
	var paidInput map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/coder_luffy~free-tweet-scraper/runs", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"profiles not supported"}`, http.StatusBadRequest)
	})
	mux.HandleFunc("POST /v2/acts/apidojo~tweet-scraper/runs", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&paidInput)
		writeJSON(w, map[string]any{"data": map[string]any{
			"id": "run-2", "status": "RUNNING", "defaultDatasetId": "ds-2",
		}})
	})
	mux.HandleFunc("GET /v2/actor-runs/run-2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": map[string]any{
			"id": "run-2", "status": "SUCCEEDED", "defaultDatasetId": "ds-2",
		}})
	})
	mux.HandleFunc("GET /v2/datasets/ds-2/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": "111", "text": "First"},
			{"id": "222", "text": "Second"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	deps := newTestDeps(t)
	deps.Creds.Explicit = "tok-1"
	deps.Apify = func(token string) *fetch.Apify {
		return fetch.NewApify(resty.New(), srv.URL, token, time.Millisecond, nil)
	}
	s := NewTwitter(deps)

	raw, err := s.Extract(context.Background(), "https://x.com/gopher", scrape.MethodManaged)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if raw["is_profile"] != true {
		t.Errorf("is_profile = %v, want true", raw["is_profile"])
	}
	if got := len(mapList(raw["tweets"])); got != 2 {
		t.Errorf("got %d tweets, want 2", got)
	}
	if paidInput["maxItems"] != float64(1000) || paidInput["sort"] != "Latest" {
		t.Errorf("paid actor input = %v", paidInput)
	}
}

func TestReferencedURLs(t *testing.T) {
	tweet := map[string]any{
		"entities": map[string]any{
			"urls": []any{
				map[string]any{"expanded_url": "https://example.com/post"},
				map[string]any{"expanded_url": "https://twitter.com/other/status/1"},
			},
		},
		"urls": []any{"https://example.com/post", "https://blog.example.org/entry"},
	}
	got := referencedURLs(tweet)
	want := []string{"https://example.com/post", "https://blog.example.org/entry"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
}
