package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// chromiumCandidates are binary names tried on PATH when no explicit
// executable is configured.
var chromiumCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// BrowserOptions configure the shared headless browser.
type BrowserOptions struct {
	ExecPath    string
	Headless    bool
	UserAgent   string
	SettleDelay time.Duration
	MaxTabs     int
}

// RenderedPage is the outcome of one browser navigation.
type RenderedPage struct {
	HTML     string
	FinalURL string
	Title    string
}

// Browser renders JavaScript-heavy pages through a shared headless
// Chromium. The process starts on first use, not at construction, so
// probing availability stays cheap.
type Browser struct {
	opts BrowserOptions
	log  *slog.Logger

	lookPath func(file string) (string, error)

	startOnce sync.Once
	startErr  error
	ctx       context.Context
	cancelCtx context.CancelFunc
	cancelAll context.CancelFunc

	slots chan struct{}
}

// NewBrowser returns an unstarted browser handle.
func NewBrowser(opts BrowserOptions, log *slog.Logger) *Browser {
	if log == nil {
		log = slog.Default()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	if opts.MaxTabs <= 0 {
		opts.MaxTabs = 2
	}
	return &Browser{
		opts:     opts,
		log:      log,
		lookPath: exec.LookPath,
		slots:    make(chan struct{}, opts.MaxTabs),
	}
}

// Executable resolves the Chromium binary that would be launched.
func (b *Browser) Executable() (string, bool) {
	if b.opts.ExecPath != "" {
		if _, err := os.Stat(b.opts.ExecPath); err == nil {
			return b.opts.ExecPath, true
		}
		return "", false
	}
	for _, name := range chromiumCandidates {
		if path, err := b.lookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

func (b *Browser) start() error {
	b.startOnce.Do(func() {
		execPath, ok := b.Executable()
		if !ok {
			b.startErr = fmt.Errorf("browser: no chromium executable found")
			return
		}

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(execPath),
			chromedp.Flag("headless", b.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.WindowSize(1280, 2000),
		)
		allocCtx, cancelAll := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

		// Spawns the process and fails fast when it cannot run.
		if err := chromedp.Run(browserCtx); err != nil {
			cancelCtx()
			cancelAll()
			b.startErr = fmt.Errorf("browser: start chromium: %w", err)
			return
		}

		b.ctx = browserCtx
		b.cancelCtx = cancelCtx
		b.cancelAll = cancelAll
		b.log.Debug("browser started", "exec_path", execPath, "headless", b.opts.Headless)
	})
	return b.startErr
}

// Render navigates a fresh tab to url, waits for the document to
// settle, and returns the rendered HTML. Tab count is bounded; extra
// calls queue until a slot frees or ctx is done.
func (b *Browser) Render(ctx context.Context, url string) (RenderedPage, error) {
	if err := b.start(); err != nil {
		return RenderedPage{}, err
	}

	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
	case <-ctx.Done():
		return RenderedPage{}, ctx.Err()
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx)
	defer cancel()
	// The tab lives under the browser context; propagate the caller's
	// cancellation into it.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var page RenderedPage
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.opts.SettleDelay),
		chromedp.Location(&page.FinalURL),
		chromedp.Title(&page.Title),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	}
	if b.opts.UserAgent != "" {
		tasks = append(chromedp.Tasks{
			emulation.SetUserAgentOverride(b.opts.UserAgent).
				WithAcceptLanguage("en-US,en;q=0.9").
				WithPlatform("MacIntel"),
		}, tasks...)
	}

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return RenderedPage{}, ctx.Err()
		}
		return RenderedPage{}, fmt.Errorf("browser: render %s: %w", url, err)
	}
	return page, nil
}

// Close shuts the browser process down. Safe to call without a prior
// Render.
func (b *Browser) Close() {
	if b.cancelCtx != nil {
		b.cancelCtx()
	}
	if b.cancelAll != nil {
		b.cancelAll()
	}
}
