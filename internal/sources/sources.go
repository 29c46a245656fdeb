// Package sources implements the scraper plugin for each supported
// site. Every plugin follows the same shape: URL recognition and id
// extraction up front, one extractor per supported method, and a
// Normalize that reshapes the raw result into the stored record.
package sources

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"trawl/internal/creds"
	"trawl/internal/fetch"
	"trawl/internal/scrape"
)

// missingTokenMsg is surfaced when no Apify credential can be found
// anywhere: environment, .env files, or the 1Password CLI.
const missingTokenMsg = `apify api token required: set APIFY_API_TOKEN, add it to .env, or store it in 1Password item "Apify"`

// Deps bundles the shared engines and configuration the plugins draw
// on. One Deps value backs every registered plugin.
type Deps struct {
	HTTP    *resty.Client
	Browser *fetch.Browser

	// Apify builds a job client for a resolved token. Tokens are
	// resolved per attempt rather than at startup because the
	// credential may only be reachable through the op CLI.
	Apify func(token string) *fetch.Apify

	Feeds *fetch.FeedReader
	Creds *creds.Resolver
	Log   *slog.Logger

	// MinBodyChars is the smallest readable body a referenced page
	// must yield before the plain fetch of it counts as a success.
	MinBodyChars int

	// Now stamps records during normalization; nil means time.Now.
	Now func() time.Time
}

// Register adds every source plugin to reg in resolution order.
func Register(reg *scrape.Registry, deps Deps) {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	d := &deps
	reg.Register(NewChatGPT(d))
	reg.Register(NewTwitter(d))
	reg.Register(NewSpotify(d))
	reg.Register(NewNYTPodcast(d))
	reg.Register(NewMetacast(d))
}

// probeBrowser reports whether a chromium binary is on hand for
// rendering. The browser itself starts lazily on first use.
func (d *Deps) probeBrowser() (scrape.Availability, string) {
	if d.Browser == nil {
		return scrape.Unavailable, "browser rendering not configured"
	}
	if _, ok := d.Browser.Executable(); !ok {
		return scrape.Unavailable, "no chromium executable found"
	}
	return scrape.Available, ""
}

// probeManaged checks for an Apify token without shelling out. A
// token reachable only through the op CLI counts as obtainable on
// demand: the attempt itself will fetch it.
func (d *Deps) probeManaged() (scrape.Availability, string) {
	if d.Creds.LocalToken() != "" {
		return scrape.Available, ""
	}
	if d.Creds.OpAvailable() {
		return scrape.InstallableOnDemand, "apify token not set; will try the 1Password CLI"
	}
	return scrape.Unavailable, missingTokenMsg
}

// apify resolves the job-API token and builds a client for it.
func (d *Deps) apify(ctx context.Context) (*fetch.Apify, error) {
	token := d.Creds.Token(ctx)
	if token == "" {
		return nil, errors.New(missingTokenMsg)
	}
	return d.Apify(token), nil
}

// scrapedAt reads the extraction timestamp out of a raw result,
// falling back to the current clock when absent.
func (d *Deps) scrapedAt(raw scrape.Raw) int64 {
	switch v := raw["scraped_at"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return d.Now().Unix()
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func countField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// mapList normalizes the two shapes a list of objects shows up in:
// typed slices built in-process and []any decoded from JSON.
func mapList(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
