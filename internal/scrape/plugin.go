// Package scrape holds the source-plugin contract, the registry that
// resolves URLs to plugins, and the orchestrator that walks extraction
// methods in priority order for a single scrape invocation.
package scrape

import (
	"context"
	"fmt"
)

// Method names one extraction strategy.
type Method string

const (
	MethodAuto    Method = "auto"
	MethodBrowser Method = "browser-rendered"
	MethodManaged Method = "managed-job"
	MethodPlain   Method = "plain-fetch"
)

// MethodOrder is the fixed fallback priority used for MethodAuto,
// most capable first. It is never reordered at runtime.
var MethodOrder = []Method{MethodBrowser, MethodManaged, MethodPlain}

// ParseMethod maps a request string to a Method. Empty means auto.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case "":
		return MethodAuto, nil
	case MethodAuto, MethodBrowser, MethodManaged, MethodPlain:
		return m, nil
	}
	return "", fmt.Errorf("unknown method %q (want %s, %s, %s or %s)",
		s, MethodAuto, MethodBrowser, MethodManaged, MethodPlain)
}

// Availability reports whether a method's external dependency can be
// used for an attempt.
type Availability int

const (
	// Unavailable means the dependency is missing and cannot be obtained.
	Unavailable Availability = iota
	// InstallableOnDemand means the dependency is absent right now but
	// the attempt itself can obtain it (for example a credential an
	// external helper can supply).
	InstallableOnDemand
	// Available means the method can be attempted immediately.
	Available
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case InstallableOnDemand:
		return "installable-on-demand"
	default:
		return "unavailable"
	}
}

// Raw is the untyped result of one extraction attempt. Its keys are
// source-specific; it exists only as input to the same plugin's
// Normalize.
type Raw = map[string]any

// Record is one canonical record ready for storage. ID names the
// record within its source; fan-out sources return one Record per
// child identifier.
type Record struct {
	ID   string
	Data map[string]any
}

// Plugin is one scrapeable source. Plugins are stateless beyond their
// configuration and safe for sequential reuse across invocations.
type Plugin interface {
	// Name is the registry key and the storage directory name.
	Name() string

	// Description is a short human-readable summary of the source.
	Description() string

	// CanHandle reports whether this plugin recognises the URL.
	CanHandle(url string) bool

	// ExtractID derives the source identifier from the URL.
	ExtractID(url string) (string, error)

	// Methods lists the extraction methods this source supports.
	Methods() []Method

	// Probe checks the external dependency of m without side effects.
	// The string explains any state other than Available.
	Probe(ctx context.Context, m Method) (Availability, string)

	// Extract runs one extraction method against the URL.
	Extract(ctx context.Context, url string, m Method) (Raw, error)

	// Normalize converts an extraction result into canonical records.
	// It performs no I/O and fills defaults for missing fields.
	Normalize(raw Raw, id string) ([]Record, error)

	// Prefix is the file-name prefix for this source's records,
	// distinct per source so records never collide across sources.
	Prefix() string
}
