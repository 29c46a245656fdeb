// Package storage persists canonical records as pretty-printed JSON
// files under <baseDir>/imports/<source>/ and enumerates them for
// listing and point lookup.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// canonical renders records the same way every time: two-space indent,
// sorted keys, HTML left unescaped. Re-writing an unchanged record
// produces byte-identical output.
var canonical = jsoniter.Config{
	IndentionStep: 2,
	SortMapKeys:   true,
	EscapeHTML:    false,
}.Froze()

// MarshalCanonical renders v in the storage encoding. The CLI uses it
// so printed results match stored records.
func MarshalCanonical(v any) ([]byte, error) {
	return canonical.Marshal(v)
}

// Sort keys accepted by List.
const (
	SortRecency = "recency"          // scraped_at, newest first
	SortLabel   = "label"            // display title, case-insensitive ascending
	SortMetric  = "secondary-metric" // per-source count field, largest first
)

// ValidSortKey reports whether s names a List sort order.
func ValidSortKey(s string) bool {
	switch s {
	case SortRecency, SortLabel, SortMetric:
		return true
	}
	return false
}

// SourceSpec names one source directory and its record file prefix.
type SourceSpec struct {
	Name   string
	Prefix string
}

// Entry is one listed record.
type Entry struct {
	Source    string
	ID        string
	Path      string
	ScrapedAt int64

	label  string
	metric float64
}

// Listing holds List results: Items truncated to the requested limit,
// Total the untruncated count.
type Listing struct {
	Items []Entry
	Total int
	Shown int
}

// Store is the on-disk record store. Writes are whole-file
// replacements with no locking; concurrent writers targeting the same
// path are last-writer-wins.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) *Store { return &Store{baseDir: baseDir} }

func (s *Store) BaseDir() string { return s.baseDir }

// PathFor computes the deterministic location of a record:
// <baseDir>/imports/<source>/<prefix>_<id>.json.
func (s *Store) PathFor(source, prefix, id string) string {
	return filepath.Join(s.baseDir, "imports", source, fmt.Sprintf("%s_%s.json", prefix, id))
}

// Write persists record at path, creating parent directories as needed
// and fully replacing any existing file.
func (s *Store) Write(path string, record map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: create dir for %s: %w", path, err)
	}
	data, err := canonical.Marshal(record)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// Read loads one record from path.
func (s *Store) Read(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	var record map[string]any
	if err := canonical.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", path, err)
	}
	return record, nil
}

// List enumerates stored records for the given sources, keeping only
// those matching filter ("" or "all" keeps every source), sorts them
// by sortKey and truncates to limit (non-positive means unlimited).
// Files that fail to parse are skipped rather than aborting the
// enumeration.
func (s *Store) List(specs []SourceSpec, filter string, limit int, sortKey string) (*Listing, error) {
	var entries []Entry
	for _, spec := range specs {
		if filter != "" && filter != "all" && filter != spec.Name {
			continue
		}
		dir := filepath.Join(s.baseDir, "imports", spec.Name)
		matches, err := filepath.Glob(filepath.Join(dir, spec.Prefix+"_*.json"))
		if err != nil {
			return nil, fmt.Errorf("storage: glob %s: %w", dir, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			record, err := s.Read(path)
			if err != nil {
				continue
			}
			entries = append(entries, newEntry(spec, path, record))
		}
	}

	switch sortKey {
	case SortLabel:
		sort.SliceStable(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].label) < strings.ToLower(entries[j].label)
		})
	case SortMetric:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].metric > entries[j].metric
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].ScrapedAt > entries[j].ScrapedAt
		})
	}

	total := len(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return &Listing{Items: entries, Total: total, Shown: len(entries)}, nil
}

// idKeys are the per-source identifier fields, tried in order.
var idKeys = []string{"share_id", "tweet_id", "playlist_id", "episode_id"}

func newEntry(spec SourceSpec, path string, record map[string]any) Entry {
	e := Entry{Source: spec.Name, Path: path}
	for _, k := range idKeys {
		if v, ok := record[k].(string); ok && v != "" {
			e.ID = v
			break
		}
	}
	if e.ID == "" {
		e.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	e.ScrapedAt = asInt64(record["scraped_at"])
	if e.ScrapedAt == 0 {
		e.ScrapedAt = asInt64(record["update_time"])
	}

	e.label, _ = record["title"].(string)
	if e.label == "" {
		e.label, _ = record["text"].(string)
	}
	if e.label == "" {
		e.label = e.ID
	}

	// Conversation records count nodes; other sources carry a count
	// field directly.
	if mapping, ok := record["mapping"].(map[string]any); ok {
		e.metric = float64(len(mapping))
	} else {
		for _, k := range []string{"likes", "followers", "total_tracks"} {
			if v, ok := asFloat(record[k]); ok {
				e.metric = v
				break
			}
		}
	}
	return e
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
