// Package fetch provides the retrieval engines the source plugins
// share: a hardened HTTP client, a lazily started headless browser,
// the Apify managed-job API, podcast feed lookup, and readable-text
// extraction.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Terminal Apify run states.
const (
	runSucceeded = "SUCCEEDED"
	runFailed    = "FAILED"
	runAborted   = "ABORTED"
	runTimedOut  = "TIMED-OUT"
)

// RunError reports a managed job that reached a terminal state other
// than success.
type RunError struct {
	Actor  string
	Status string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("apify run failed with status: %s", e.Status)
}

// Apify drives actors through the Apify REST API: start a run, poll it
// to a terminal state, then read the default dataset.
type Apify struct {
	http         *resty.Client
	baseURL      string
	token        string
	pollInterval time.Duration
	runTimeout   time.Duration
	log          *slog.Logger
}

// NewApify returns a client for the given API base URL. The token is
// attached to every request.
func NewApify(httpc *resty.Client, baseURL, token string, pollInterval time.Duration, log *slog.Logger) *Apify {
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Apify{
		http:         httpc,
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		pollInterval: pollInterval,
		log:          log,
	}
}

// WithRunTimeout caps how long a single RunActor call may take, start
// to dataset read. Zero leaves only the caller's context in charge.
func (a *Apify) WithRunTimeout(d time.Duration) *Apify {
	a.runTimeout = d
	return a
}

type runEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

// RunActor starts the named actor ("owner/name") with the given input,
// waits for the run to finish, and returns the dataset items. Polling
// stops when ctx is done.
func (a *Apify) RunActor(ctx context.Context, actor string, input any) ([]map[string]any, error) {
	if a.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.runTimeout)
		defer cancel()
	}

	// The REST API addresses actors as owner~name.
	slug := strings.ReplaceAll(actor, "/", "~")

	var started runEnvelope
	resp, err := a.http.R().
		SetContext(ctx).
		SetAuthToken(a.token).
		SetBody(input).
		SetResult(&started).
		Post(a.baseURL + "/v2/acts/" + slug + "/runs")
	if err != nil {
		return nil, fmt.Errorf("apify: start actor %s: %w", actor, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("apify: start actor %s: %s", actor, resp.Status())
	}
	runID := started.Data.ID
	if runID == "" {
		return nil, fmt.Errorf("apify: start actor %s: no run id in response", actor)
	}
	a.log.Debug("apify run started", "actor", actor, "run_id", runID)

	run, err := a.waitForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Data.Status != runSucceeded {
		return nil, &RunError{Actor: actor, Status: run.Data.Status}
	}

	var items []map[string]any
	resp, err = a.http.R().
		SetContext(ctx).
		SetAuthToken(a.token).
		SetQueryParams(map[string]string{"format": "json", "clean": "true"}).
		SetResult(&items).
		Get(a.baseURL + "/v2/datasets/" + run.Data.DefaultDatasetID + "/items")
	if err != nil {
		return nil, fmt.Errorf("apify: read dataset: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("apify: read dataset: %s", resp.Status())
	}
	a.log.Debug("apify run finished", "actor", actor, "items", len(items))
	return items, nil
}

func (a *Apify) waitForRun(ctx context.Context, runID string) (*runEnvelope, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		var run runEnvelope
		resp, err := a.http.R().
			SetContext(ctx).
			SetAuthToken(a.token).
			SetResult(&run).
			Get(a.baseURL + "/v2/actor-runs/" + runID)
		if err != nil {
			return nil, fmt.Errorf("apify: poll run %s: %w", runID, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("apify: poll run %s: %s", runID, resp.Status())
		}
		switch run.Data.Status {
		case runSucceeded, runFailed, runAborted, runTimedOut:
			return &run, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
