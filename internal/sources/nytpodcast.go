package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"trawl/internal/scrape"
)

var (
	nytEpisodePath = regexp.MustCompile(`nytimes\.com/(\d{4}/\d{2}/\d{2}/podcasts/[^/]+)`)
	nytEpisodeSlug = regexp.MustCompile(`podcasts/([^/]+)\.html`)
	nytURLDate     = regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`)
	nytShowSlug    = regexp.MustCompile(`/podcasts/([^/]+)/`)

	nytHardForkTitle = regexp.MustCompile(`Hard Fork[:\s]+(.+?)\s*\||Hard Fork[:\s]+(.+)$`)

	// speakerLine matches the "Casey Newton:" dialogue markers that
	// distinguish a transcript from an ordinary article body.
	speakerLine = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*:`)

	// transcriptCuts slice a transcript out of flattened page text
	// when no dedicated transcript container exists.
	transcriptCuts = []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:Transcript|Full Transcript|Episode Transcript)[:\s]*\n(.+?)(?:\n\n[A-Z]|\z)`),
		regexp.MustCompile(`(?is)(?:Show transcript|View transcript|Read transcript)[:\s]*\n(.+?)(?:\n\n|\z)`),
	}
)

// nytPaywallPhrases flag a page that is gated rather than rendered.
// Deliberately broad: a false positive only marks the record, it does
// not stop extraction.
var nytPaywallPhrases = []string{
	"subscribe", "log in", "create account", "paywall",
	"you've reached your article limit",
}

// NYTPodcast scrapes New York Times podcast episode pages, chasing
// the transcript above all else. Episode pages are fully
// client-rendered, so only the browser method applies.
type NYTPodcast struct {
	deps *Deps
}

func NewNYTPodcast(deps *Deps) *NYTPodcast { return &NYTPodcast{deps: deps} }

func (s *NYTPodcast) Name() string        { return "nyt_podcast" }
func (s *NYTPodcast) Description() string { return "New York Times podcast episode pages" }
func (s *NYTPodcast) Prefix() string      { return "episode" }

func (s *NYTPodcast) CanHandle(url string) bool {
	return strings.Contains(url, "nytimes.com") && strings.Contains(url, "/podcasts/")
}

func (s *NYTPodcast) ExtractID(url string) (string, error) {
	if m := nytEpisodePath.FindStringSubmatch(url); m != nil {
		// Date plus slug keeps ids unique across recurring shows.
		return strings.ReplaceAll(m[1], "/", "-"), nil
	}
	if m := nytEpisodeSlug.FindStringSubmatch(url); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("invalid nyt podcast url format: %s", url)
}

func (s *NYTPodcast) Methods() []scrape.Method {
	return []scrape.Method{scrape.MethodBrowser}
}

func (s *NYTPodcast) Probe(ctx context.Context, m scrape.Method) (scrape.Availability, string) {
	if m == scrape.MethodBrowser {
		return s.deps.probeBrowser()
	}
	return scrape.Available, ""
}

func (s *NYTPodcast) Extract(ctx context.Context, url string, m scrape.Method) (scrape.Raw, error) {
	if m != scrape.MethodBrowser {
		return nil, fmt.Errorf("unsupported method %q", m)
	}
	page, err := s.deps.Browser.Render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape nyt podcast episode: %w", err)
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse episode page: %w", err)
	}
	raw := nytFromDoc(doc, page.Title, url)
	raw["url"] = url
	raw["scraped_at"] = s.deps.Now().Unix()
	s.enrichFromFeed(ctx, raw)
	return raw, nil
}

// enrichFromFeed fills audio URL, duration and date from the show's
// RSS feed when the page itself did not surface them.
func (s *NYTPodcast) enrichFromFeed(ctx context.Context, raw scrape.Raw) {
	if s.deps.Feeds == nil {
		return
	}
	show := stringField(raw, "show_name")
	title := stringField(raw, "title")
	if show == "" || title == "" || title == "Unknown Episode" {
		return
	}
	if stringField(raw, "audio_url") != "" && stringField(raw, "duration") != "" {
		return
	}
	ep, err := s.deps.Feeds.Episode(ctx, show, title)
	if err != nil {
		s.deps.Log.Debug("feed lookup failed", "show", show, "error", err)
		return
	}
	if ep == nil {
		return
	}
	if stringField(raw, "audio_url") == "" && ep.AudioURL != "" {
		raw["audio_url"] = ep.AudioURL
	}
	if stringField(raw, "duration") == "" && ep.Duration != "" {
		raw["duration"] = ep.Duration
	}
	if stringField(raw, "date") == "" && ep.Date != "" {
		raw["date"] = ep.Date
	}
}

// nytFromDoc reads one rendered episode page. pageTitle is the
// browser-reported document title, used as a title fallback.
func nytFromDoc(doc *goquery.Document, pageTitle, url string) scrape.Raw {
	pageText := flatText(doc.Find("body"))
	lower := strings.ToLower(pageText)
	paywalled := false
	for _, phrase := range nytPaywallPhrases {
		if strings.Contains(lower, phrase) {
			paywalled = true
			break
		}
	}

	title := nytTitle(doc, pageTitle, url)
	var description any
	for _, sel := range []string{`[data-testid="article-summary"]`, "article p", `[class*="summary"]`} {
		if t := firstText(doc, sel); len(t) > 50 {
			description = t
			break
		}
	}

	var date any
	if d := firstAttr(doc, "time[datetime]", "datetime"); d != "" {
		date = d
	} else {
		for _, sel := range []string{`[data-testid="timestamp"]`, "time", `[class*="date"]`, `[class*="timestamp"]`} {
			if t := firstText(doc, sel); t != "" {
				date = t
				break
			}
		}
	}
	if date == nil {
		if m := nytURLDate.FindStringSubmatch(url); m != nil {
			date = m[1] + "-" + m[2] + "-" + m[3]
		}
	}

	var transcript any
	if t := nytTranscript(doc, pageText); t != "" {
		transcript = t
	}

	var audio any
	for _, sel := range []string{"audio source[src]", "audio[src]", `[data-testid="audio-player"] source`, `[class*="audio"] source`} {
		if src := firstAttr(doc, sel, "src"); src != "" {
			audio = src
			break
		}
	}

	var show any
	for _, sel := range []string{`[data-testid="podcast-show"]`, `a[href*="/podcasts/"]`, `[class*="podcast"]`, `[class*="show"]`} {
		if t := firstText(doc, sel); t != "" && len(t) < 100 {
			show = t
			break
		}
	}
	if show == nil {
		if m := nytShowSlug.FindStringSubmatch(url); m != nil {
			if strings.Contains(m[1], "hard-fork") || strings.Contains(strings.ToLower(url), "hardfork") {
				show = "Hard Fork"
			} else {
				show = titleCase(strings.ReplaceAll(m[1], "-", " "))
			}
		}
	}

	var duration any
	for _, sel := range []string{`[data-testid="duration"]`, `[class*="duration"]`, "time[data-duration]"} {
		if t := firstText(doc, sel); t != "" {
			duration = t
			break
		}
	}

	return scrape.Raw{
		"title":        title,
		"show_name":    show,
		"description":  description,
		"date":         date,
		"duration":     duration,
		"transcript":   transcript,
		"audio_url":    audio,
		"is_paywalled": paywalled,
	}
}

// nytTitle walks the headline ladder, rejecting site-chrome strings
// that match generic headline selectors.
func nytTitle(doc *goquery.Document, pageTitle, url string) string {
	selectors := []string{
		`h1[data-testid="headline"]`,
		`h1[itemprop="headline"]`,
		"h1",
		`[data-testid="headline"]`,
		"article h1",
		"header h1",
		"main h1",
		`[class*="headline"]`,
	}
	for _, sel := range selectors {
		t := firstText(doc, sel)
		if t == "" || len(t) <= 10 {
			continue
		}
		if t == "The New York Times" || t == "Podcasts" || t == "Hard Fork" {
			continue
		}
		return t
	}
	if pageTitle != "" {
		if m := nytHardForkTitle.FindStringSubmatch(pageTitle); m != nil {
			if m[1] != "" {
				return strings.TrimSpace(m[1])
			}
			return strings.TrimSpace(m[2])
		}
		if pageTitle != "The New York Times" {
			return strings.TrimSpace(strings.Split(pageTitle, "|")[0])
		}
	}
	if m := nytEpisodeSlug.FindStringSubmatch(url); m != nil {
		return titleCase(strings.ReplaceAll(m[1], "-", " "))
	}
	return "Unknown Episode"
}

// nytTranscript hunts for the episode transcript: dedicated
// containers first, then a cut of the page text, then increasingly
// loose article-body heuristics.
func nytTranscript(doc *goquery.Document, pageText string) string {
	selectors := []string{
		`[data-testid="transcript"]`,
		`[class*="transcript"]`,
		`[id*="transcript"]`,
		`article section[aria-label*="transcript"]`,
		`div[class*="Transcript"]`,
		`section[class*="transcript"]`,
	}
	for _, sel := range selectors {
		if t := strings.TrimSpace(flatText(doc.Find(sel).First())); len(t) > 100 {
			return t
		}
	}

	for _, cut := range transcriptCuts {
		if m := cut.FindStringSubmatch(pageText); m != nil {
			if t := strings.TrimSpace(m[1]); len(t) > 200 {
				return t
			}
		}
	}

	// A long article body full of "Speaker:" lines is the transcript
	// even without transcript markup.
	body := flatText(doc.Find(`article, [role="article"], main, [class*="article"]`).First())
	if len(body) > 2000 {
		if speakerLine.MatchString(body) {
			return body
		}
		if strings.Contains(body, "?") && strings.Contains(body, ":") {
			return body
		}
	}

	if t := nytFilteredMain(doc); t != "" {
		return t
	}

	var parts []string
	doc.Find(`p, div[class*="text"], div[class*="content"]`).Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(flatText(p))
		if len(text) <= 50 {
			return
		}
		lowerText := strings.ToLower(text)
		for _, ui := range []string{"subscribe", "log in", "cookie", "privacy policy"} {
			if strings.Contains(lowerText, ui) {
				return
			}
		}
		parts = append(parts, text)
	})
	return strings.Join(parts, "\n\n")
}

// nytFilteredMain strips navigation lines out of the main content
// area and keeps it only when something substantial remains.
func nytFilteredMain(doc *goquery.Document) string {
	text := flatText(doc.Find(`main, article, [role="main"], [class*="article"]`).First())
	if len(text) <= 500 {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) <= 20 {
			continue
		}
		if strings.HasPrefix(line, "Skip") || strings.HasPrefix(line, "Subscribe") {
			continue
		}
		lines = append(lines, line)
	}
	if joined := strings.Join(lines, "\n"); len(joined) > 500 {
		return joined
	}
	return ""
}

func (s *NYTPodcast) Normalize(raw scrape.Raw, id string) ([]scrape.Record, error) {
	title := stringField(raw, "title")
	if title == "" {
		title = "Unknown Episode"
	}
	paywalled, _ := raw["is_paywalled"].(bool)
	data := map[string]any{
		"source":         "nyt_podcast",
		"episode_id":     id,
		"title":          title,
		"show_name":      raw["show_name"],
		"description":    raw["description"],
		"date":           raw["date"],
		"duration":       raw["duration"],
		"transcript":     raw["transcript"],
		"audio_url":      raw["audio_url"],
		"url":            stringField(raw, "url"),
		"scraped_at":     s.deps.scrapedAt(raw),
		"has_transcript": stringField(raw, "transcript") != "",
		"is_paywalled":   paywalled,
		"raw_data":       raw,
	}
	return []scrape.Record{{ID: id, Data: data}}, nil
}
