// Package mcp exposes the scrape service over the Model Context
// Protocol. Every tool reply is a JSON object; failures are reported
// inside that object rather than as protocol-level errors so agent
// callers always get a parseable payload.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"trawl/internal/scrape"
	"trawl/internal/storage"
)

const defaultListLimit = 50

// Server wraps the MCP SDK server around the scrape service.
type Server struct {
	MCPServer *sdkmcp.Server

	svc *scrape.Service

	// Scrapes are serialized: concurrent attempts against the same
	// external source risk duplicate remote jobs and rate-limit bans.
	// Read-only tools are not gated.
	mu sync.Mutex
}

// NewServer creates an MCP server exposing the scrape, list, get and
// discovery tools over svc.
func NewServer(svc *scrape.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{svc: svc}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "trawl", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "scrape_content",
		Description: "Scrape a supported URL into a canonical JSON record. The source is detected from the URL; extraction methods are tried in priority order unless one is named.",
	}, s.handleScrapeContent)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_scraped_content",
		Description: "List previously scraped records, optionally filtered by source, sorted and truncated to a limit.",
	}, s.handleListScrapedContent)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_scraped_content",
		Description: "Return the full stored record for a source and content id.",
	}, s.handleGetScrapedContent)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_supported_sources",
		Description: "Describe the registered sources and the extraction methods each one supports.",
	}, s.handleListSupportedSources)
}

// --- Tool input/output types ---

type scrapeContentInput struct {
	URL        string `json:"url" jsonschema:"the content URL to scrape"`
	Method     string `json:"method,omitempty" jsonschema:"extraction method: auto (default), browser-rendered, managed-job or plain-fetch"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"override the computed record path; ignored when the scrape fans out into multiple records"`
}

type sampleTweet struct {
	TweetID     string `json:"tweet_id"`
	TextPreview string `json:"text_preview"`
}

type scrapeContentOutput struct {
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	Details          []string `json:"details,omitempty"`
	SupportedSources []string `json:"supported_sources,omitempty"`

	Source     string `json:"source,omitempty"`
	ContentID  string `json:"content_id,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	MethodUsed string `json:"method_used,omitempty"`

	// Conversation summaries. MessageCount is a pointer so an empty
	// conversation still reports zero instead of dropping the field.
	Title        string `json:"title,omitempty"`
	MessageCount *int   `json:"message_count,omitempty"`

	// Single-post summaries.
	Username    string `json:"username,omitempty"`
	TextPreview string `json:"text_preview,omitempty"`

	// Fan-out summaries (account scrapes producing one record per post).
	Account       string        `json:"account,omitempty"`
	TweetsScraped int           `json:"tweets_scraped,omitempty"`
	OutputPaths   []string      `json:"output_paths,omitempty"`
	SampleTweets  []sampleTweet `json:"sample_tweets,omitempty"`
}

type listScrapedContentInput struct {
	Source string `json:"source,omitempty" jsonschema:"source name, or \"all\" (default) for every source"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum records to return (default 50)"`
	SortBy string `json:"sort_by,omitempty" jsonschema:"sort order: recency (default), label or secondary-metric"`
}

type listedRecord struct {
	Source    string `json:"source"`
	ContentID string `json:"content_id"`
	FilePath  string `json:"file_path"`
	ScrapedAt int64  `json:"scraped_at"`
}

type listScrapedContentOutput struct {
	Error   string         `json:"error,omitempty"`
	Content []listedRecord `json:"content"`
	Total   int            `json:"total"`
	Shown   int            `json:"shown"`
}

type getScrapedContentInput struct {
	Source    string `json:"source" jsonschema:"source name, e.g. chatgpt or twitter"`
	ContentID string `json:"content_id" jsonschema:"identifier of the stored record"`
}

type getScrapedContentOutput struct {
	Error            string   `json:"error,omitempty"`
	SupportedSources []string `json:"supported_sources,omitempty"`

	Source    string         `json:"source,omitempty"`
	ContentID string         `json:"content_id,omitempty"`
	FilePath  string         `json:"file_path,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type listSupportedSourcesInput struct{}

type sourceEntry struct {
	Name             string   `json:"name"`
	SupportedMethods []string `json:"supported_methods"`
	Description      string   `json:"description"`
}

type listSupportedSourcesOutput struct {
	Sources []sourceEntry `json:"sources"`
	Total   int           `json:"total"`
}

// --- Tool handlers ---

func (s *Server) handleScrapeContent(ctx context.Context, _ *sdkmcp.CallToolRequest, input scrapeContentInput) (*sdkmcp.CallToolResult, scrapeContentOutput, error) {
	if input.URL == "" {
		return nil, scrapeContentOutput{Error: "url is required"}, nil
	}
	method, err := scrape.ParseMethod(input.Method)
	if err != nil {
		return nil, scrapeContentOutput{Error: err.Error()}, nil
	}

	s.mu.Lock()
	result, err := s.svc.ScrapeURL(ctx, scrape.Request{
		URL:        input.URL,
		Method:     method,
		OutputPath: input.OutputPath,
	})
	s.mu.Unlock()
	if err != nil {
		return nil, scrapeFailure(err), nil
	}
	return nil, scrapeSuccess(result), nil
}

func scrapeFailure(err error) scrapeContentOutput {
	out := scrapeContentOutput{Error: err.Error()}
	var noSource *scrape.NoSourceError
	if errors.As(err, &noSource) {
		out.SupportedSources = noSource.Sources
	}
	var exhausted *scrape.ExhaustedError
	if errors.As(err, &exhausted) {
		out.Details = exhausted.Attempts
	}
	return out
}

func scrapeSuccess(result *scrape.Result) scrapeContentOutput {
	out := scrapeContentOutput{
		Success:    true,
		Source:     result.Source,
		MethodUsed: string(result.MethodUsed),
	}

	if result.FanOut {
		out.Account = result.ID
		out.TweetsScraped = len(result.Records)
		out.OutputPaths = result.Paths
		for i, rec := range result.Records {
			if i == 3 {
				break
			}
			text, _ := rec.Data["text"].(string)
			out.SampleTweets = append(out.SampleTweets, sampleTweet{
				TweetID:     rec.ID,
				TextPreview: preview(text),
			})
		}
		return out
	}

	out.ContentID = result.ID
	out.OutputPath = result.Paths[0]
	record := result.Records[0].Data
	switch result.Source {
	case "chatgpt":
		out.Title, _ = record["title"].(string)
		count := 0
		if mapping, ok := record["mapping"].(map[string]any); ok {
			count = len(mapping)
		}
		out.MessageCount = &count
	case "twitter":
		out.Username, _ = record["username"].(string)
		text, _ := record["text"].(string)
		out.TextPreview = preview(text)
	}
	return out
}

// preview truncates post text for summaries, by runes so multi-byte
// characters survive the cut.
func preview(text string) string {
	const max = 100
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func (s *Server) handleListScrapedContent(ctx context.Context, _ *sdkmcp.CallToolRequest, input listScrapedContentInput) (*sdkmcp.CallToolResult, listScrapedContentOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	sortKey := input.SortBy
	if sortKey == "" {
		sortKey = storage.SortRecency
	}
	if !storage.ValidSortKey(sortKey) {
		return nil, listScrapedContentOutput{
			Error: fmt.Sprintf("unknown sort key %q (want %s, %s or %s)",
				input.SortBy, storage.SortRecency, storage.SortLabel, storage.SortMetric),
		}, nil
	}

	listing, err := s.svc.List(input.Source, limit, sortKey)
	if err != nil {
		return nil, listScrapedContentOutput{Error: err.Error()}, nil
	}
	content := make([]listedRecord, len(listing.Items))
	for i, e := range listing.Items {
		content[i] = listedRecord{
			Source:    e.Source,
			ContentID: e.ID,
			FilePath:  e.Path,
			ScrapedAt: e.ScrapedAt,
		}
	}
	return nil, listScrapedContentOutput{
		Content: content,
		Total:   listing.Total,
		Shown:   listing.Shown,
	}, nil
}

func (s *Server) handleGetScrapedContent(ctx context.Context, _ *sdkmcp.CallToolRequest, input getScrapedContentInput) (*sdkmcp.CallToolResult, getScrapedContentOutput, error) {
	if input.Source == "" || input.ContentID == "" {
		return nil, getScrapedContentOutput{Error: "source and content_id are required"}, nil
	}

	content, err := s.svc.Get(input.Source, input.ContentID)
	if err != nil {
		out := getScrapedContentOutput{Error: err.Error()}
		var unknown *scrape.UnknownSourceError
		if errors.As(err, &unknown) {
			out.SupportedSources = unknown.Sources
		}
		var notFound *scrape.NotFoundError
		if errors.As(err, &notFound) {
			out.FilePath = notFound.Path
		}
		return nil, out, nil
	}
	return nil, getScrapedContentOutput{
		Source:    content.Source,
		ContentID: content.ID,
		FilePath:  content.Path,
		Data:      content.Data,
	}, nil
}

func (s *Server) handleListSupportedSources(ctx context.Context, _ *sdkmcp.CallToolRequest, _ listSupportedSourcesInput) (*sdkmcp.CallToolResult, listSupportedSourcesOutput, error) {
	infos := s.svc.Sources()
	entries := make([]sourceEntry, len(infos))
	for i, info := range infos {
		methods := make([]string, len(info.Methods))
		for j, m := range info.Methods {
			methods[j] = string(m)
		}
		entries[i] = sourceEntry{
			Name:             info.Name,
			SupportedMethods: methods,
			Description:      info.Description,
		}
	}
	return nil, listSupportedSourcesOutput{Sources: entries, Total: len(entries)}, nil
}
