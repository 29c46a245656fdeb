package scrape

import (
	"fmt"
	"strings"
)

// NoSourceError reports a URL no registered plugin recognises. It is
// informational, not fatal: a serving process keeps handling requests
// after returning it.
type NoSourceError struct {
	URL     string
	Sources []string
}

func (e *NoSourceError) Error() string {
	return fmt.Sprintf("unsupported URL %q; supported sources: %s", e.URL, strings.Join(e.Sources, ", "))
}

// IDError reports a URL that matched a source but does not parse into
// a valid identifier.
type IDError struct {
	Source string
	Err    error
}

func (e *IDError) Error() string { return fmt.Sprintf("%s: %v", e.Source, e.Err) }

func (e *IDError) Unwrap() error { return e.Err }

// UnknownSourceError reports a source name nothing is registered
// under, for lookups addressed by name rather than URL.
type UnknownSourceError struct {
	Name    string
	Sources []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q; supported sources: %s", e.Name, strings.Join(e.Sources, ", "))
}

// NotFoundError reports a (source, id) pair with no stored record.
type NotFoundError struct {
	Source string
	ID     string
	Path   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("content not found: %s (source %s)", e.ID, e.Source)
}

// MethodUnsupportedError reports an explicitly requested method the
// plugin does not implement at all.
type MethodUnsupportedError struct {
	Source    string
	Method    Method
	Supported []Method
}

func (e *MethodUnsupportedError) Error() string {
	names := make([]string, len(e.Supported))
	for i, m := range e.Supported {
		names[i] = string(m)
	}
	return fmt.Sprintf("%s does not support method %q (supported: %s)",
		e.Source, e.Method, strings.Join(names, ", "))
}

// ExhaustedError aggregates every per-method failure of one
// invocation, in attempt order, each formatted "method: reason". The
// reasons are kept verbatim so operators can see which dependency or
// site behaviour to fix.
type ExhaustedError struct {
	Source   string
	URL      string
	Attempts []string
}

func (e *ExhaustedError) Error() string {
	return "all scraping methods failed: " + strings.Join(e.Attempts, "; ")
}
