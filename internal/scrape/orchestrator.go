package scrape

import (
	"context"
	"fmt"
	"log/slog"
)

// Orchestrator walks a plugin's extraction methods and returns the
// first raw result. Attempts are strictly sequential: a concurrent
// attempt against the same source could spawn duplicate remote jobs or
// trip rate limits.
type Orchestrator struct {
	log *slog.Logger
}

func NewOrchestrator(log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{log: log}
}

// Run executes the extraction phase of one invocation. MethodAuto
// walks MethodOrder filtered to the plugin's supported set; an
// explicit method is tried exactly once with no fallback. Each method
// is probed first and skipped with a recorded reason when its
// dependency is Unavailable; InstallableOnDemand methods are attempted
// so they can obtain the dependency themselves. The returned failures
// slice holds every unsuccessful attempt so far, in order, even when a
// later method succeeds.
func (o *Orchestrator) Run(ctx context.Context, p Plugin, url string, requested Method) (Raw, Method, []string, error) {
	var methods []Method
	if requested == MethodAuto || requested == "" {
		supported := make(map[Method]bool, len(p.Methods()))
		for _, m := range p.Methods() {
			supported[m] = true
		}
		for _, m := range MethodOrder {
			if supported[m] {
				methods = append(methods, m)
			}
		}
	} else {
		ok := false
		for _, m := range p.Methods() {
			if m == requested {
				ok = true
				break
			}
		}
		if !ok {
			return nil, "", nil, &MethodUnsupportedError{Source: p.Name(), Method: requested, Supported: p.Methods()}
		}
		methods = []Method{requested}
	}

	var failures []string
	for _, m := range methods {
		if err := ctx.Err(); err != nil {
			return nil, "", failures, err
		}
		state, reason := p.Probe(ctx, m)
		if state == Unavailable {
			if reason == "" {
				reason = "not available"
			}
			o.log.Warn("method unavailable", "source", p.Name(), "method", string(m), "reason", reason)
			failures = append(failures, fmt.Sprintf("%s: %s", m, reason))
			continue
		}
		o.log.Info("extracting", "source", p.Name(), "method", string(m), "url", url)
		raw, err := p.Extract(ctx, url, m)
		if err != nil {
			o.log.Warn("extraction failed", "source", p.Name(), "method", string(m), "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", m, err))
			continue
		}
		return raw, m, failures, nil
	}
	return nil, "", failures, &ExhaustedError{Source: p.Name(), URL: url, Attempts: failures}
}
