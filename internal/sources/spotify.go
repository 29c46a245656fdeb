package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"trawl/internal/scrape"
)

var spotifyPlaylistID = regexp.MustCompile(`open\.spotify\.com/playlist/([a-zA-Z0-9]+)`)

// Spotify scrapes public playlist pages. Playlists only materialise
// in a real browser; there is no server-rendered fallback worth
// keeping.
type Spotify struct {
	deps *Deps
}

func NewSpotify(deps *Deps) *Spotify { return &Spotify{deps: deps} }

func (s *Spotify) Name() string        { return "spotify" }
func (s *Spotify) Description() string { return "Spotify playlists" }
func (s *Spotify) Prefix() string      { return "playlist" }

func (s *Spotify) CanHandle(url string) bool {
	return strings.Contains(url, "open.spotify.com/playlist/")
}

func (s *Spotify) ExtractID(url string) (string, error) {
	m := spotifyPlaylistID.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("invalid spotify playlist url format: %s", url)
	}
	return m[1], nil
}

func (s *Spotify) Methods() []scrape.Method {
	return []scrape.Method{scrape.MethodBrowser}
}

func (s *Spotify) Probe(ctx context.Context, m scrape.Method) (scrape.Availability, string) {
	if m == scrape.MethodBrowser {
		return s.deps.probeBrowser()
	}
	return scrape.Available, ""
}

func (s *Spotify) Extract(ctx context.Context, url string, m scrape.Method) (scrape.Raw, error) {
	if m != scrape.MethodBrowser {
		return nil, fmt.Errorf("unsupported method %q", m)
	}
	page, err := s.deps.Browser.Render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape spotify playlist: %w", err)
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse playlist page: %w", err)
	}
	raw := spotifyFromDoc(doc)
	raw["url"] = url
	raw["scraped_at"] = s.deps.Now().Unix()
	return raw, nil
}

// spotifyFromDoc reads the playlist header and every loaded tracklist
// row out of a rendered playlist page.
func spotifyFromDoc(doc *goquery.Document) scrape.Raw {
	title := firstText(doc, `div[data-testid="entityTitle"], h1`)
	if title == "" {
		title = "Unknown Playlist"
	}
	owner := firstText(doc, `a[href*="/user/"]`)
	if owner == "" {
		owner = firstText(doc, `a[href*="/artist/"]`)
	}
	if owner == "" {
		owner = "Unknown"
	}
	var description any
	if d := firstText(doc, `[data-testid="playlist-description"]`); d != "" {
		description = d
	}
	// Follower counts render as display text ("1,234 likes"); kept
	// verbatim rather than parsed.
	var followers any
	if f := firstText(doc, `[data-testid="followers-count"]`); f != "" {
		followers = f
	}

	tracks := []map[string]any{}
	doc.Find(`div[data-testid="tracklist-row"]`).Each(func(_ int, row *goquery.Selection) {
		if track, ok := spotifyTrack(row); ok {
			tracks = append(tracks, track)
		}
	})

	return scrape.Raw{
		"title":        title,
		"owner":        owner,
		"description":  description,
		"followers":    followers,
		"total_tracks": len(tracks),
		"tracks":       tracks,
	}
}

// spotifyTrack reads one tracklist row. Rows where neither a name nor
// an artist could be found are reported as not ok: they are skeleton
// rows the page had not hydrated yet.
func spotifyTrack(row *goquery.Selection) (map[string]any, bool) {
	name := "Unknown Track"
	for _, sel := range []string{`div[data-testid="entityTitle"]`, `a[href*="/track/"]`, `span[dir="auto"]`} {
		if t := strings.TrimSpace(row.Find(sel).First().Text()); t != "" {
			name = t
			break
		}
	}

	var artists []string
	row.Find(`a[href*="/artist/"]`).Each(func(_ int, a *goquery.Selection) {
		if t := strings.TrimSpace(a.Text()); t != "" {
			artists = append(artists, t)
		}
	})
	if len(artists) == 0 {
		artists = []string{"Unknown Artist"}
	}

	var album any
	if t := strings.TrimSpace(row.Find(`a[href*="/album/"]`).First().Text()); t != "" {
		album = t
	}
	var trackURL any
	if href, ok := row.Find(`a[href*="/track/"]`).First().Attr("href"); ok && href != "" {
		if !strings.HasPrefix(href, "http") {
			href = "https://open.spotify.com" + href
		}
		trackURL = href
	}
	var duration any
	if t := strings.TrimSpace(row.Find(`span[data-testid="duration"]`).First().Text()); t != "" {
		duration = t
	}

	if name == "Unknown Track" && len(artists) == 1 && artists[0] == "Unknown Artist" {
		return nil, false
	}
	return map[string]any{
		"name":     name,
		"artists":  artists,
		"album":    album,
		"url":      trackURL,
		"duration": duration,
	}, true
}

func (s *Spotify) Normalize(raw scrape.Raw, id string) ([]scrape.Record, error) {
	title := stringField(raw, "title")
	if title == "" {
		title = "Unknown Playlist"
	}
	owner := stringField(raw, "owner")
	if owner == "" {
		owner = "Unknown"
	}
	tracks := raw["tracks"]
	if tracks == nil {
		tracks = []map[string]any{}
	}
	data := map[string]any{
		"source":       "spotify",
		"playlist_id":  id,
		"title":        title,
		"owner":        owner,
		"description":  raw["description"],
		"followers":    raw["followers"],
		"total_tracks": countField(raw, "total_tracks"),
		"tracks":       tracks,
		"url":          stringField(raw, "url"),
		"scraped_at":   s.deps.scrapedAt(raw),
		"raw_data":     raw,
	}
	return []scrape.Record{{ID: id, Data: data}}, nil
}
