package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
<title>The Daily</title>
<item>
  <title>Episode One</title>
  <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  <enclosure url="https://cdn.example.com/ep1.mp3" length="1" type="audio/mpeg"/>
  <itunes:duration>25:00</itunes:duration>
</item>
<item>
  <title>Episode Two: The Reckoning</title>
  <pubDate>Tue, 03 Jan 2006 15:04:05 GMT</pubDate>
  <enclosure url="https://cdn.example.com/ep2.mp3" length="1" type="audio/mpeg"/>
  <itunes:duration>30:00</itunes:duration>
</item>
</channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, testFeedXML)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEpisodeLookup(t *testing.T) {
	srv := newFeedServer(t)
	reader := NewFeedReader(map[string]string{"The Daily": srv.URL}, nil)

	ep, err := reader.Episode(context.Background(), "the daily", "Episode Two: The Reckoning")
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if ep == nil {
		t.Fatal("episode not found")
	}
	if ep.AudioURL != "https://cdn.example.com/ep2.mp3" {
		t.Errorf("AudioURL = %q", ep.AudioURL)
	}
	if ep.Duration != "30:00" {
		t.Errorf("Duration = %q, want 30:00", ep.Duration)
	}
	if ep.Date != "2006-01-03" {
		t.Errorf("Date = %q, want 2006-01-03", ep.Date)
	}
}

func TestEpisodePartialTitleMatch(t *testing.T) {
	srv := newFeedServer(t)
	reader := NewFeedReader(map[string]string{"The Daily": srv.URL}, nil)

	ep, err := reader.Episode(context.Background(), "The Daily", "episode two")
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if ep == nil || ep.Title != "Episode Two: The Reckoning" {
		t.Fatalf("got %+v, want Episode Two", ep)
	}
}

func TestEpisodeUnknownShow(t *testing.T) {
	reader := NewFeedReader(map[string]string{}, nil)

	ep, err := reader.Episode(context.Background(), "No Such Show", "whatever")
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if ep != nil {
		t.Fatalf("got %+v, want nil for unconfigured show", ep)
	}
}

func TestEpisodeNoMatch(t *testing.T) {
	srv := newFeedServer(t)
	reader := NewFeedReader(map[string]string{"The Daily": srv.URL}, nil)

	ep, err := reader.Episode(context.Background(), "The Daily", "completely different name")
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if ep != nil {
		t.Fatalf("got %+v, want nil", ep)
	}
}
