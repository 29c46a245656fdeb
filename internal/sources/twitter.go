package sources

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"trawl/internal/fetch"
	"trawl/internal/scrape"
)

// Actor ids for the managed tweet jobs. The free actor handles single
// tweets and most profiles; the paid one picks up profile runs the
// free actor rejects.
const (
	twitterActorFree = "coder_luffy/free-tweet-scraper"
	twitterActorPaid = "apidojo/tweet-scraper"
)

var (
	tweetIDPattern  = regexp.MustCompile(`/(?:twitter|x)\.com/\w+/status/(\d+)`)
	usernamePattern = regexp.MustCompile(`(?:twitter|x)\.com/(\w+)(?:/|$)`)
)

// Twitter scrapes single tweets and whole profiles through managed
// jobs. Tweet pages are too hostile to direct fetching for the other
// methods to be worth attempting.
type Twitter struct {
	deps *Deps
}

func NewTwitter(deps *Deps) *Twitter { return &Twitter{deps: deps} }

func (s *Twitter) Name() string        { return "twitter" }
func (s *Twitter) Description() string { return "Tweets and X/Twitter profiles" }
func (s *Twitter) Prefix() string      { return "tweet" }

func (s *Twitter) CanHandle(url string) bool {
	return strings.Contains(url, "twitter.com/") || strings.Contains(url, "x.com/")
}

// IsProfile reports whether url names an account rather than a tweet.
func IsProfile(url string) bool {
	return (strings.Contains(url, "twitter.com/") || strings.Contains(url, "x.com/")) &&
		!strings.Contains(url, "/status/")
}

func (s *Twitter) ExtractID(url string) (string, error) {
	if IsProfile(url) {
		m := usernamePattern.FindStringSubmatch(strings.TrimRight(url, "/"))
		if m == nil {
			return "", fmt.Errorf("could not extract username from url: %s", url)
		}
		return m[1], nil
	}
	return tweetIDFromURL(url)
}

func tweetIDFromURL(url string) (string, error) {
	m := tweetIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("invalid x/twitter url format: %s", url)
	}
	return m[1], nil
}

func (s *Twitter) Methods() []scrape.Method {
	return []scrape.Method{scrape.MethodManaged}
}

func (s *Twitter) Probe(ctx context.Context, m scrape.Method) (scrape.Availability, string) {
	if m == scrape.MethodManaged {
		return s.deps.probeManaged()
	}
	return scrape.Available, ""
}

func (s *Twitter) Extract(ctx context.Context, url string, m scrape.Method) (scrape.Raw, error) {
	if m != scrape.MethodManaged {
		return nil, fmt.Errorf("unsupported method %q", m)
	}
	client, err := s.deps.apify(ctx)
	if err != nil {
		return nil, err
	}

	if IsProfile(url) {
		items, err := s.profileItems(ctx, client, url)
		if err != nil {
			return nil, err
		}
		return scrape.Raw{"tweets": items, "is_profile": true, "url": url}, nil
	}

	items, err := client.RunActor(ctx, twitterActorFree, map[string]any{"urls": []string{url}})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New("no tweet data extracted by apify")
	}
	raw := scrape.Raw(items[0])
	if refs := s.referencedContent(ctx, raw); len(refs) > 0 {
		raw["referenced_content"] = refs
	}
	return raw, nil
}

// profileItems runs the free actor first and falls back to the paid
// one, which accepts profile URLs the free actor sometimes rejects.
func (s *Twitter) profileItems(ctx context.Context, client *fetch.Apify, url string) ([]map[string]any, error) {
	items, err := client.RunActor(ctx, twitterActorFree, map[string]any{"urls": []string{url}})
	if err != nil {
		s.deps.Log.Debug("free tweet actor failed, trying paid actor", "url", url, "error", err)
		items, err = client.RunActor(ctx, twitterActorPaid, map[string]any{
			"startUrls":          []string{url},
			"maxItems":           1000,
			"sort":               "Latest",
			"tweetLanguage":      "en",
			"includeSearchTerms": false,
			"onlyImage":          false,
			"onlyQuote":          false,
			"onlyTwitterBlue":    false,
			"onlyVerifiedUsers":  false,
			"onlyVideo":          false,
		})
		if err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, errors.New("no tweet data extracted by apify")
	}
	return items, nil
}

// referencedContent fetches the pages a tweet links out to, so the
// stored record carries their text rather than bare shortened URLs.
func (s *Twitter) referencedContent(ctx context.Context, tweet map[string]any) []fetch.Reference {
	urls := referencedURLs(tweet)
	if len(urls) == 0 {
		return nil
	}
	return fetch.FetchReferences(ctx, s.deps.HTTP, s.deps.Browser, urls, s.deps.MinBodyChars, s.deps.Log)
}

// referencedURLs collects outbound link candidates from the expanded
// entities and the top-level url list, skipping links back into
// twitter itself.
func referencedURLs(tweet map[string]any) []string {
	var candidates []string
	if entities, ok := tweet["entities"].(map[string]any); ok {
		for _, m := range mapList(entities["urls"]) {
			if u := stringField(m, "expanded_url"); u != "" {
				candidates = append(candidates, u)
			}
		}
	}
	if list, ok := tweet["urls"].([]any); ok {
		for _, item := range list {
			if u, ok := item.(string); ok && u != "" {
				candidates = append(candidates, u)
			}
		}
	}

	var out []string
	seen := make(map[string]bool)
	for _, u := range candidates {
		if seen[u] || strings.Contains(u, "twitter.com") || strings.Contains(u, "x.com") {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func (s *Twitter) Normalize(raw scrape.Raw, id string) ([]scrape.Record, error) {
	now := s.deps.Now().Unix()

	if profile, _ := raw["is_profile"].(bool); profile {
		tweets := mapList(raw["tweets"])
		records := make([]scrape.Record, 0, len(tweets))
		for _, tweet := range tweets {
			tweetID := stringField(tweet, "id")
			if tweetID == "" {
				if u := stringField(tweet, "url"); strings.Contains(u, "/status/") {
					tweetID, _ = tweetIDFromURL(u)
				}
			}
			if tweetID == "" {
				tweetID = fmt.Sprintf("unknown_%d", len(records))
			}
			records = append(records, scrape.Record{ID: tweetID, Data: normalizeTweet(tweet, tweetID, now)})
		}
		return records, nil
	}

	data := normalizeTweet(raw, id, now)
	if refs, ok := raw["referenced_content"]; ok {
		data["referenced_content"] = refs
	}
	return []scrape.Record{{ID: id, Data: data}}, nil
}

func normalizeTweet(tweet map[string]any, id string, scrapedAt int64) map[string]any {
	var username string
	switch a := tweet["author"].(type) {
	case map[string]any:
		username = stringField(a, "username")
	case string:
		username = a
	}
	var createdAt any = scrapedAt
	if v, ok := tweet["createdAt"]; ok {
		createdAt = v
	}
	return map[string]any{
		"source":     "twitter",
		"tweet_id":   id,
		"username":   username,
		"text":       stringField(tweet, "text"),
		"created_at": createdAt,
		"likes":      countField(tweet, "likeCount"),
		"retweets":   countField(tweet, "retweetCount"),
		"replies":    countField(tweet, "replyCount"),
		"url":        stringField(tweet, "url"),
		"scraped_at": scrapedAt,
		"raw_data":   tweet,
	}
}
