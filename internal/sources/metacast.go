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
	// Episode URLs look like
	// metacast.app/podcast/<show>/<showID>/<episode-slug>/<episodeID>;
	// slug plus id keeps the identifier readable and unique.
	metacastEpisodeID   = regexp.MustCompile(`metacast\.app/podcast/[^/]+/[^/]+/([^/]+)/([^/]+)`)
	metacastLastSegment = regexp.MustCompile(`metacast\.app/podcast/.+/([^/]+)$`)

	// metacastStops mark where the transcript section ends when it has
	// to be cut out of flattened page text.
	metacastStops = []string{"learn more", "open in metacast", "metacast: podcast"}
)

// Metacast scrapes metacast.app podcast episode pages, which publish
// full transcripts. The pages are React-rendered, so only the browser
// method applies.
type Metacast struct {
	deps *Deps
}

func NewMetacast(deps *Deps) *Metacast { return &Metacast{deps: deps} }

func (s *Metacast) Name() string        { return "metacast" }
func (s *Metacast) Description() string { return "Metacast podcast episode pages" }
func (s *Metacast) Prefix() string      { return "episode" }

func (s *Metacast) CanHandle(url string) bool {
	return strings.Contains(url, "metacast.app") && strings.Contains(url, "/podcast/")
}

func (s *Metacast) ExtractID(url string) (string, error) {
	if m := metacastEpisodeID.FindStringSubmatch(url); m != nil {
		return m[1] + "_" + m[2], nil
	}
	if m := metacastLastSegment.FindStringSubmatch(url); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("invalid metacast url format: %s", url)
}

func (s *Metacast) Methods() []scrape.Method {
	return []scrape.Method{scrape.MethodBrowser}
}

func (s *Metacast) Probe(ctx context.Context, m scrape.Method) (scrape.Availability, string) {
	if m == scrape.MethodBrowser {
		return s.deps.probeBrowser()
	}
	return scrape.Available, ""
}

func (s *Metacast) Extract(ctx context.Context, url string, m scrape.Method) (scrape.Raw, error) {
	if m != scrape.MethodBrowser {
		return nil, fmt.Errorf("unsupported method %q", m)
	}
	page, err := s.deps.Browser.Render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape metacast episode: %w", err)
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse episode page: %w", err)
	}
	raw := metacastFromDoc(doc, page.Title, url)
	raw["url"] = url
	raw["scraped_at"] = s.deps.Now().Unix()
	return raw, nil
}

// metacastFromDoc reads one rendered episode page. pageTitle is the
// browser-reported document title, used as a title fallback.
func metacastFromDoc(doc *goquery.Document, pageTitle, url string) scrape.Raw {
	title := metacastTitle(doc, pageTitle, url)

	var show any
	for _, sel := range []string{`a[href*="/podcast/"]`, `[data-testid="show-name"]`, `[class*="podcast"]`, `[class*="show"]`, "h2, h3"} {
		if t := firstText(doc, sel); t != "" && len(t) < 100 && t != title {
			show = t
			break
		}
	}

	var description any
	for _, sel := range []string{`[data-testid="description"]`, `[class*="description"]`, `p[class*="summary"]`, "article p"} {
		if t := firstText(doc, sel); len(t) > 50 {
			description = t
			break
		}
	}

	var date any
	if d := firstAttr(doc, "time[datetime]", "datetime"); d != "" {
		date = d
	} else {
		for _, sel := range []string{`[data-testid="date"]`, "time", `[class*="date"]`, `[class*="published"]`} {
			if t := firstText(doc, sel); t != "" {
				date = t
				break
			}
		}
	}

	var duration any
	for _, sel := range []string{`[data-testid="duration"]`, `[class*="duration"]`, "time[data-duration]", `[class*="length"]`} {
		if t := firstText(doc, sel); t != "" {
			duration = t
			break
		}
	}

	var audio any
	for _, sel := range []string{"audio source[src]", "audio[src]"} {
		if src := firstAttr(doc, sel, "src"); src != "" {
			audio = src
			break
		}
	}
	if audio == nil {
		if href := firstAttr(doc, `a[href$=".mp3"], a[href$=".m4a"], a[href$=".ogg"]`, "href"); href != "" {
			audio = href
		}
	}

	var transcript any
	if t := metacastTranscript(doc); t != "" {
		transcript = t
	}

	return scrape.Raw{
		"title":       title,
		"show_name":   show,
		"description": description,
		"date":        date,
		"duration":    duration,
		"transcript":  transcript,
		"audio_url":   audio,
	}
}

// metacastTitle walks the heading ladder, rejecting the site's own
// name when it matches generic selectors.
func metacastTitle(doc *goquery.Document, pageTitle, url string) string {
	for _, sel := range []string{"main section h1", "main h1", "h1", `[role="heading"][aria-level="1"]`} {
		t := firstText(doc, sel)
		if len(t) > 5 && !metacastGenericTitle(t) {
			return t
		}
	}
	if pageTitle != "" && !metacastGenericTitle(pageTitle) {
		// Document titles read "Episode | Show - Metacast".
		if i := strings.Index(pageTitle, "|"); i >= 0 {
			return strings.TrimSpace(pageTitle[:i])
		}
		if i := strings.Index(pageTitle, "-"); i >= 0 {
			return strings.TrimSpace(pageTitle[:i])
		}
		return strings.TrimSpace(pageTitle)
	}
	if m := metacastEpisodeID.FindStringSubmatch(url); m != nil {
		return titleCase(strings.ReplaceAll(m[1], "-", " "))
	}
	return "Unknown Episode"
}

func metacastGenericTitle(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "metacast.app", "metacast", "podcast":
		return true
	}
	return false
}

// metacastTranscript hunts for the transcript: the section headed
// "Transcript" first, then any substantial article, then a cut of the
// flattened page text after a Transcript heading.
func metacastTranscript(doc *goquery.Document) string {
	var transcript string
	doc.Find("main section").EachWithBreak(func(_ int, section *goquery.Selection) bool {
		heading := strings.ToLower(section.Find(`h2, h3, [role="heading"]`).First().Text())
		if !strings.Contains(heading, "transcript") {
			return true
		}
		if t := strings.TrimSpace(flatText(section.Find("article").First())); len(t) > 200 {
			transcript = t
			return false
		}
		return true
	})
	if transcript != "" {
		return transcript
	}

	// No labelled section; a long article with speaker lines is the
	// transcript anyway.
	doc.Find("main article, article").EachWithBreak(func(_ int, article *goquery.Selection) bool {
		t := strings.TrimSpace(flatText(article))
		if len(t) > 1000 && speakerLine.MatchString(t) {
			transcript = t
			return false
		}
		return true
	})
	if transcript != "" {
		return transcript
	}

	return metacastTranscriptFromText(flatText(doc.Find("body")))
}

// metacastTranscriptFromText cuts the transcript out of flattened page
// text: everything after a line starting with "Transcript" until the
// page footer, dropping short UI fragments.
func metacastTranscriptFromText(pageText string) string {
	lines := strings.Split(pageText, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "transcript") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	var kept []string
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" || len(line) <= 5 {
			continue
		}
		lower := strings.ToLower(line)
		stopped := false
		for _, stop := range metacastStops {
			if strings.Contains(lower, stop) {
				stopped = true
				break
			}
		}
		if stopped {
			break
		}
		kept = append(kept, line)
	}
	if joined := strings.Join(kept, "\n"); len(joined) > 200 {
		return joined
	}
	return ""
}

func (s *Metacast) Normalize(raw scrape.Raw, id string) ([]scrape.Record, error) {
	title := stringField(raw, "title")
	if title == "" {
		title = "Unknown Episode"
	}
	data := map[string]any{
		"source":         "metacast",
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
		"raw_data":       raw,
	}
	return []scrape.Record{{ID: id, Data: data}}, nil
}
