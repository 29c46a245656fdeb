package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FeedReader resolves podcast episode metadata from configured RSS
// feeds, keyed by show name.
type FeedReader struct {
	feeds  map[string]string
	parser *gofeed.Parser
}

// NewFeedReader builds a reader over a show-name to feed-URL map.
// Show names match case-insensitively.
func NewFeedReader(feeds map[string]string, client *http.Client) *FeedReader {
	lowered := make(map[string]string, len(feeds))
	for show, feedURL := range feeds {
		lowered[strings.ToLower(strings.TrimSpace(show))] = feedURL
	}
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	return &FeedReader{feeds: lowered, parser: parser}
}

// Episode is the metadata a feed item carries for one episode.
type Episode struct {
	Title    string
	AudioURL string
	Duration string
	Date     string
}

// Episode finds an episode by show and title. A show with no
// configured feed, or a title with no matching item, resolves to nil
// without error.
func (f *FeedReader) Episode(ctx context.Context, show, title string) (*Episode, error) {
	feedURL := f.feeds[strings.ToLower(strings.TrimSpace(show))]
	needle := strings.ToLower(strings.TrimSpace(title))
	if feedURL == "" || needle == "" {
		return nil, nil
	}

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feedURL, err)
	}

	for _, item := range feed.Items {
		have := strings.ToLower(strings.TrimSpace(item.Title))
		if have == "" {
			continue
		}
		if have == needle || strings.Contains(have, needle) || strings.Contains(needle, have) {
			return episodeFromItem(item), nil
		}
	}
	return nil, nil
}

func episodeFromItem(item *gofeed.Item) *Episode {
	ep := &Episode{Title: item.Title}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if ep.AudioURL == "" {
			ep.AudioURL = enc.URL
		}
		if strings.HasPrefix(enc.Type, "audio/") {
			ep.AudioURL = enc.URL
			break
		}
	}
	if item.ITunesExt != nil {
		ep.Duration = item.ITunesExt.Duration
	}
	if item.PublishedParsed != nil {
		ep.Date = item.PublishedParsed.Format("2006-01-02")
	} else {
		ep.Date = item.Published
	}
	return ep
}
