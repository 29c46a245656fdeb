package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"trawl/internal/config"
	"trawl/internal/creds"
	"trawl/internal/fetch"
	"trawl/internal/history"
	"trawl/internal/logging"
	"trawl/internal/scrape"
	"trawl/internal/sources"
	"trawl/internal/storage"
)

// httpTimeout bounds individual plain fetches. Apify jobs run under
// their own configured timeout; the service timeout caps everything.
const httpTimeout = 30 * time.Second

// app holds the wired-up service and the handles that need closing.
type app struct {
	cfg     *config.Config
	svc     *scrape.Service
	store   *storage.Store
	history *history.Log
	browser *fetch.Browser
	log     *slog.Logger
}

func (a *app) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
}

// buildApp loads configuration and assembles the full scrape pipeline.
// Flags override config values, which override environment lookups.
func buildApp() (*app, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return nil, err
	}

	levelName := rootFlags.logLevel
	if levelName == "" {
		levelName = cfg.Log.Level
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.Log.Format)
	log := logging.New("trawl")

	resolver := creds.New()
	resolver.Explicit = cfg.Apify.Token

	dataDir := rootFlags.dataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = resolver.DataDir()
	}
	store := storage.NewStore(dataDir)

	historyPath := cfg.HistoryPath
	if historyPath == "" {
		historyPath = filepath.Join(dataDir, config.DefaultHistoryFile)
	}
	hist, err := history.Open(historyPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	httpc := fetch.NewHTTPClient(cfg.HTTP.UserAgent, cfg.HTTP.RatePerSec, httpTimeout)
	browser := fetch.NewBrowser(fetch.BrowserOptions{
		ExecPath:    cfg.Browser.ExecPath,
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.HTTP.UserAgent,
		SettleDelay: cfg.Browser.SettleDelay.Duration,
		MaxTabs:     cfg.Browser.MaxTabs,
	}, logging.New("browser"))

	reg := scrape.NewRegistry()
	sources.Register(reg, sources.Deps{
		HTTP:    httpc,
		Browser: browser,
		Apify: func(token string) *fetch.Apify {
			return fetch.NewApify(httpc, cfg.Apify.BaseURL, token,
				cfg.Apify.PollInterval.Duration, logging.New("apify")).
				WithRunTimeout(cfg.Apify.RunTimeout.Duration)
		},
		Feeds:        fetch.NewFeedReader(cfg.Feeds, httpc.GetClient()),
		Creds:        resolver,
		Log:          logging.New("sources"),
		MinBodyChars: cfg.HTTP.MinBodyChars,
	})

	svc := scrape.NewService(scrape.ServiceOptions{
		Registry: reg,
		Store:    store,
		History:  hist,
		Timeout:  cfg.Timeout.Duration,
		Log:      log,
	})

	return &app{
		cfg:     cfg,
		svc:     svc,
		store:   store,
		history: hist,
		browser: browser,
		log:     log,
	}, nil
}
