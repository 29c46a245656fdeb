package fetch

import (
	"context"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

// Reference is the readable content behind one outbound link.
type Reference struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Error string `json:"error,omitempty"`
}

const refConcurrency = 4

// FetchReferences pulls the readable text behind each URL, a few at a
// time. Failures are reported per reference, never as an overall
// error, and results keep input order. A nil browser disables the
// rendered fallback.
func FetchReferences(ctx context.Context, httpc *resty.Client, browser *Browser, urls []string, minBody int, log *slog.Logger) []Reference {
	if log == nil {
		log = slog.Default()
	}
	refs := make([]Reference, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			refs[i] = fetchOneReference(gctx, httpc, browser, u, minBody)
			if refs[i].Error != "" {
				log.Debug("reference fetch failed", "url", u, "error", refs[i].Error)
			}
			return nil
		})
	}
	g.Wait()
	return refs
}

func fetchOneReference(ctx context.Context, httpc *resty.Client, browser *Browser, url string, minBody int) Reference {
	ref := Reference{URL: url}

	var title, body string
	resp, err := httpc.R().SetContext(ctx).Get(url)
	if err == nil && !resp.IsError() {
		if t, b, perr := Readable(string(resp.Body())); perr == nil {
			title, body = t, b
		}
	}
	if len(body) >= minBody && !NeedsJS(body) {
		ref.Title, ref.Body = title, body
		return ref
	}

	// Body too short or hidden behind a JS wall; try the rendered page.
	if browser == nil {
		ref.Error = "browser not available and plain fetch yielded no content"
		return ref
	}
	if _, ok := browser.Executable(); !ok {
		ref.Error = "browser not available and plain fetch yielded no content"
		return ref
	}
	page, err := browser.Render(ctx, url)
	if err != nil {
		ref.Error = err.Error()
		return ref
	}
	t, b, err := Readable(page.HTML)
	if err != nil {
		ref.Error = err.Error()
		return ref
	}
	if page.Title != "" {
		t = page.Title
	}
	ref.Title, ref.Body = t, b
	return ref
}
