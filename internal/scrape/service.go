package scrape

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"trawl/internal/history"
	"trawl/internal/storage"
)

// Request is one scrape invocation.
type Request struct {
	URL    string
	Method Method

	// OutputPath overrides the computed storage path. Fan-out scrapes
	// ignore it: every child record goes to its own computed path.
	OutputPath string
}

// Result is the metadata of a successful invocation. Records and Paths
// align index for index.
type Result struct {
	Source     string
	ID         string
	MethodUsed Method

	// Failures lists the methods that failed before one succeeded,
	// each formatted "method: reason".
	Failures []string

	Records []Record
	Paths   []string

	// FanOut marks an invocation that produced records keyed by child
	// identifiers (for example one per tweet of a profile) rather than
	// a single record for ID.
	FanOut bool
}

// Content is one stored record retrieved by source and id.
type Content struct {
	Source string
	ID     string
	Path   string
	Data   map[string]any
}

// SourceInfo describes one registered source for discovery output.
type SourceInfo struct {
	Name        string
	Methods     []Method
	Description string
}

// ServiceOptions configure a Service. Registry and Store are required;
// a nil History disables invocation logging.
type ServiceOptions struct {
	Registry *Registry
	Store    *storage.Store
	History  *history.Log
	Timeout  time.Duration
	Log      *slog.Logger
}

// Service runs the whole pipeline for one invocation: resolve the
// plugin, derive the identifier, walk extraction methods, normalize,
// persist, and log the run. It also backs the read-side operations
// (list, get, sources) the server and CLI expose.
type Service struct {
	registry *Registry
	orch     *Orchestrator
	store    *storage.Store
	history  *history.Log
	timeout  time.Duration
	log      *slog.Logger
}

func NewService(opts ServiceOptions) *Service {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		registry: opts.Registry,
		orch:     NewOrchestrator(log),
		store:    opts.Store,
		history:  opts.History,
		timeout:  opts.Timeout,
		log:      log,
	}
}

// ScrapeURL executes one scrape invocation under the configured
// wall-clock timeout. A failed invocation reports its cause and never
// touches records other than the one it targeted; the outcome is
// appended to the history log either way.
func (s *Service) ScrapeURL(ctx context.Context, req Request) (result *Result, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	run := history.Run{URL: req.URL, StartedAt: time.Now()}
	defer func() {
		run.Duration = time.Since(run.StartedAt)
		if err != nil {
			run.Outcome = "error"
			run.Error = err.Error()
		} else {
			run.Outcome = "success"
		}
		s.recordRun(run)
	}()

	p, ok := s.registry.Resolve(req.URL)
	if !ok {
		return nil, &NoSourceError{URL: req.URL, Sources: s.registry.Sources()}
	}
	run.Source = p.Name()

	id, err := p.ExtractID(req.URL)
	if err != nil {
		return nil, &IDError{Source: p.Name(), Err: err}
	}
	run.ContentID = id

	raw, used, failures, err := s.orch.Run(ctx, p, req.URL, req.Method)
	if err != nil {
		return nil, err
	}
	run.Method = string(used)

	records, err := p.Normalize(raw, id)
	if err != nil {
		return nil, fmt.Errorf("normalize %s result: %w", p.Name(), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s extraction via %s produced no records", p.Name(), used)
	}

	// A record keyed by anything other than the invocation id means
	// the plugin fanned out into child identifiers.
	fanOut := len(records) > 1 || records[0].ID != id

	paths := make([]string, len(records))
	for i, rec := range records {
		path := s.store.PathFor(p.Name(), p.Prefix(), rec.ID)
		if req.OutputPath != "" && !fanOut {
			path = req.OutputPath
		}
		if err := s.store.Write(path, rec.Data); err != nil {
			return nil, err
		}
		paths[i] = path
	}
	s.log.Info("scraped", "source", p.Name(), "id", id, "method", string(used), "records", len(records))

	return &Result{
		Source:     p.Name(),
		ID:         id,
		MethodUsed: used,
		Failures:   failures,
		Records:    records,
		Paths:      paths,
		FanOut:     fanOut,
	}, nil
}

// recordRun appends the invocation to the history log. History is
// advisory: a failed insert is logged, never surfaced as a scrape
// failure. A fresh context is used because the invocation's own may
// already be past its deadline.
func (s *Service) recordRun(run history.Run) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Record(ctx, run); err != nil {
		s.log.Warn("record history", "url", run.URL, "error", err)
	}
}

// List enumerates stored records across the registered sources.
func (s *Service) List(filter string, limit int, sortKey string) (*storage.Listing, error) {
	plugins := s.registry.Plugins()
	specs := make([]storage.SourceSpec, len(plugins))
	for i, p := range plugins {
		specs[i] = storage.SourceSpec{Name: p.Name(), Prefix: p.Prefix()}
	}
	return s.store.List(specs, filter, limit, sortKey)
}

// Get loads the stored record for (source, id).
func (s *Service) Get(source, id string) (*Content, error) {
	p, ok := s.registry.Get(source)
	if !ok {
		return nil, &UnknownSourceError{Name: source, Sources: s.registry.Sources()}
	}
	path := s.store.PathFor(p.Name(), p.Prefix(), id)
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Source: source, ID: id, Path: path}
		}
		return nil, err
	}
	return &Content{Source: source, ID: id, Path: path, Data: data}, nil
}

// Sources describes the registered plugins in registration order.
func (s *Service) Sources() []SourceInfo {
	plugins := s.registry.Plugins()
	infos := make([]SourceInfo, len(plugins))
	for i, p := range plugins {
		infos[i] = SourceInfo{Name: p.Name(), Methods: p.Methods(), Description: p.Description()}
	}
	return infos
}

// History returns the most recent logged invocations, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]history.Run, error) {
	if s.history == nil {
		return nil, errors.New("scrape: history log not configured")
	}
	return s.history.Recent(ctx, limit)
}
