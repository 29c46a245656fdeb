// Package creds resolves secrets and local settings from the
// environment, dotenv files, and the 1Password CLI. Absence of a
// credential is not an error here; callers decide what a missing
// token means for them.
package creds

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

const (
	opItem  = "Apify"
	opVault = "Private"
)

// opFields are the 1Password field labels tried, in order, when
// reading the Apify token from the CLI.
var opFields = []string{"API token", "api_token", "token", "API key", "apify_token"}

// Resolver looks up credentials through a fixed chain: explicit value,
// process environment, local .env, config-dir .env, then the op CLI.
// The zero value is not usable; construct with New.
type Resolver struct {
	// Explicit short-circuits the whole chain when non-empty.
	Explicit string

	// ConfigDir holds the per-user config directory (the .env there is
	// consulted after the working-directory one).
	ConfigDir string
	// WorkDir anchors the local .env lookup.
	WorkDir string

	Getenv   func(key string) string
	LookPath func(file string) (string, error)
	RunOp    func(ctx context.Context, args ...string) (string, error)

	dotenvOnce sync.Once
	dotenv     map[string]string
}

// New returns a Resolver wired to the real environment and the op
// binary on PATH.
func New() *Resolver {
	return &Resolver{
		ConfigDir: DefaultConfigDir(),
		WorkDir:   ".",
		Getenv:    os.Getenv,
		LookPath:  exec.LookPath,
		RunOp:     runOp,
	}
}

// DefaultConfigDir returns the per-user config directory for this
// tool, or "" when the user config root cannot be determined.
func DefaultConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "trawl")
}

func runOp(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "op", args...).Output()
	return string(out), err
}

// lookup resolves key from the environment, then the working-directory
// .env, then the config-dir .env.
func (r *Resolver) lookup(key string) string {
	if v := r.Getenv(key); v != "" {
		return v
	}
	r.dotenvOnce.Do(r.loadDotenv)
	return r.dotenv[key]
}

func (r *Resolver) loadDotenv() {
	r.dotenv = map[string]string{}
	// Later paths must not shadow earlier ones.
	paths := []string{filepath.Join(r.WorkDir, ".env")}
	if r.ConfigDir != "" {
		paths = append(paths, filepath.Join(r.ConfigDir, ".env"))
	}
	for _, path := range paths {
		vars, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range vars {
			if _, ok := r.dotenv[k]; !ok {
				r.dotenv[k] = v
			}
		}
	}
}

// LocalToken resolves the Apify token without shelling out: explicit
// value, APIFY_API_TOKEN, then dotenv files.
func (r *Resolver) LocalToken() string {
	if r.Explicit != "" {
		return r.Explicit
	}
	return r.lookup("APIFY_API_TOKEN")
}

// OpAvailable reports whether the 1Password CLI is on PATH.
func (r *Resolver) OpAvailable() bool {
	_, err := r.LookPath("op")
	return err == nil
}

// Token resolves the Apify token through the full chain, ending with
// the 1Password CLI. Returns "" when nothing yields a token.
func (r *Resolver) Token(ctx context.Context) string {
	if tok := r.LocalToken(); tok != "" {
		return tok
	}
	if !r.OpAvailable() {
		return ""
	}
	for _, field := range opFields {
		out, err := r.RunOp(ctx, "item", "get", opItem,
			"--vault", opVault, "--fields", "label="+field, "--reveal")
		if err != nil {
			continue
		}
		if tok := strings.TrimSpace(out); tok != "" {
			return tok
		}
	}
	return ""
}

// DataDir resolves the directory scraped records live under:
// DATA_DIR, then WEB_SCRAPER_DATA_DIR, then <config dir>/scraped.
func (r *Resolver) DataDir() string {
	if v := r.lookup("DATA_DIR"); v != "" {
		return v
	}
	if v := r.lookup("WEB_SCRAPER_DATA_DIR"); v != "" {
		return v
	}
	if r.ConfigDir != "" {
		return filepath.Join(r.ConfigDir, "scraped")
	}
	return "scraped"
}
