package sources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"trawl/internal/creds"
)

// testNow is the fixed clock shared by the plugin tests.
var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// newTestDeps returns deps with a credential resolver that finds
// nothing: no env, no dotenv files, no op binary.
func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	return &Deps{
		Creds: &creds.Resolver{
			WorkDir:   t.TempDir(),
			ConfigDir: t.TempDir(),
			Getenv:    func(string) string { return "" },
			LookPath:  func(string) (string, error) { return "", errors.New("not on path") },
			RunOp: func(context.Context, ...string) (string, error) {
				return "", errors.New("op not installed")
			},
		},
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		MinBodyChars: 100,
		Now:          func() time.Time { return testNow },
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
