package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"trawl/internal/conv"
	"trawl/internal/scrape"
)

// chatgptActor is the managed-job actor that walks a share page and
// emits one dataset item per message.
const chatgptActor = "straightforward_understanding/chatgpt-conversation-scraper"

var (
	chatgptShareID  = regexp.MustCompile(`/(?:share|c)/([a-zA-Z0-9-]+)`)
	chatgptJSONBlob = regexp.MustCompile(`\{[^{}]*"messages"[^{}]*\}`)
)

// ChatGPT scrapes shared conversation pages. The pages render client
// side, so the browser method leads; the managed job and a plain
// fetch of any server-rendered remnants back it up.
type ChatGPT struct {
	deps *Deps
}

func NewChatGPT(deps *Deps) *ChatGPT { return &ChatGPT{deps: deps} }

func (s *ChatGPT) Name() string        { return "chatgpt" }
func (s *ChatGPT) Description() string { return "ChatGPT shared conversation links" }
func (s *ChatGPT) Prefix() string      { return "share" }

func (s *ChatGPT) CanHandle(url string) bool {
	return strings.Contains(url, "chatgpt.com/share/") ||
		strings.Contains(url, "chatgpt.com/c/") ||
		strings.Contains(url, "chat.openai.com/share/")
}

func (s *ChatGPT) ExtractID(url string) (string, error) {
	m := chatgptShareID.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("invalid chatgpt share url format: %s", url)
	}
	return m[1], nil
}

func (s *ChatGPT) Methods() []scrape.Method {
	return []scrape.Method{scrape.MethodBrowser, scrape.MethodManaged, scrape.MethodPlain}
}

func (s *ChatGPT) Probe(ctx context.Context, m scrape.Method) (scrape.Availability, string) {
	switch m {
	case scrape.MethodBrowser:
		return s.deps.probeBrowser()
	case scrape.MethodManaged:
		return s.deps.probeManaged()
	default:
		return scrape.Available, ""
	}
}

func (s *ChatGPT) Extract(ctx context.Context, url string, m scrape.Method) (scrape.Raw, error) {
	switch m {
	case scrape.MethodBrowser:
		return s.extractBrowser(ctx, url)
	case scrape.MethodManaged:
		return s.extractManaged(ctx, url)
	case scrape.MethodPlain:
		return s.extractPlain(ctx, url)
	}
	return nil, fmt.Errorf("unsupported method %q", m)
}

func (s *ChatGPT) extractBrowser(ctx context.Context, url string) (scrape.Raw, error) {
	page, err := s.deps.Browser.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}
	messages := chatgptMessages(doc)
	if len(messages) == 0 {
		// Returning an error here lets auto mode fall through to the
		// managed job instead of storing an empty conversation.
		return nil, errors.New("rendered page contained no conversation messages")
	}
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = "ChatGPT Conversation"
	}
	return scrape.Raw{"messages": messages, "title": title, "url": url}, nil
}

// chatgptMessages pulls conversation turns out of share-page markup.
// Message containers carry a data-message-author-role attribute;
// pages without them fall back to alternating text blocks.
func chatgptMessages(doc *goquery.Document) []map[string]any {
	var messages []map[string]any
	doc.Find("[data-message-author-role]").Each(func(_ int, sel *goquery.Selection) {
		role, _ := sel.Attr("data-message-author-role")
		if role == "system" {
			return
		}
		text := strings.TrimSpace(sel.Find(`[class*="markdown"], [class*="prose"]`).First().Text())
		if text == "" {
			text = strings.TrimSpace(sel.Text())
		}
		if len(text) <= 20 {
			return
		}
		if strings.Contains(role, "user") {
			role = "user"
		} else {
			role = "assistant"
		}
		messages = append(messages, map[string]any{"role": role, "text": text})
	})
	if len(messages) > 0 {
		return messages
	}
	return alternatingBlocks(doc)
}

// alternatingBlocks is the last-resort extraction for share pages
// with no recognisable message markup: strip chrome, keep substantial
// text blocks, and assign alternating roles in document order.
func alternatingBlocks(doc *goquery.Document) []map[string]any {
	doc.Find("script, style, nav, header, footer").Remove()
	var messages []map[string]any
	doc.Find("p, div").Each(func(_ int, sel *goquery.Selection) {
		text := ownText(sel)
		if len(text) <= 50 {
			return
		}
		role := "user"
		if len(messages)%2 == 1 {
			role = "assistant"
		}
		messages = append(messages, map[string]any{"role": role, "text": text, "index": len(messages)})
	})
	return messages
}

func (s *ChatGPT) extractManaged(ctx context.Context, url string) (scrape.Raw, error) {
	client, err := s.deps.apify(ctx)
	if err != nil {
		return nil, err
	}
	items, err := client.RunActor(ctx, chatgptActor, map[string]any{
		"startUrls": []map[string]string{{"url": url}},
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New("no conversation data extracted by apify")
	}

	title := stringField(items[0], "conversationTitle")
	if title == "" {
		title = stringField(items[0], "title")
	}
	if title == "" {
		title = "ChatGPT Conversation"
	}

	// One dataset item per message, ordered by messageIndex.
	sort.SliceStable(items, func(i, j int) bool {
		return countField(items[i], "messageIndex") < countField(items[j], "messageIndex")
	})
	var messages []map[string]any
	for _, item := range items {
		content := stringField(item, "content")
		if content == "" {
			content = stringField(item, "text")
		}
		if content == "" && item["messageIndex"] == nil {
			continue
		}
		role := stringField(item, "role")
		if role == "" {
			role = "user"
		}
		messages = append(messages, map[string]any{"role": role, "text": content, "content": content})
	}
	return scrape.Raw{"messages": messages, "title": title, "url": url}, nil
}

func (s *ChatGPT) extractPlain(ctx context.Context, url string) (scrape.Raw, error) {
	resp, err := s.deps.HTTP.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse share page: %w", err)
	}

	// Share pages occasionally embed pre-rendered conversation JSON
	// in a script tag. Anything else is JS-rendered and out of reach
	// for a plain fetch.
	var messages []map[string]any
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		lower := strings.ToLower(text)
		if !strings.Contains(lower, "conversation") && !strings.Contains(lower, "messages") {
			return
		}
		blob := chatgptJSONBlob.FindString(text)
		if blob == "" {
			return
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(blob), &data); err != nil {
			return
		}
		for _, m := range mapList(data["messages"]) {
			messages = append(messages, m)
		}
	})

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "ChatGPT Conversation"
	}
	if len(messages) == 0 {
		messages = alternatingBlocks(doc)
	}
	return scrape.Raw{"messages": messages, "title": title, "url": url}, nil
}

func (s *ChatGPT) Normalize(raw scrape.Raw, id string) ([]scrape.Record, error) {
	title := stringField(raw, "title")
	if title == "" {
		title = "ChatGPT Conversation"
	}
	var turns []conv.Turn
	if mapping := nestedMapping(raw); mapping != nil {
		turns = turnsFromMapping(mapping)
	} else {
		turns = turnsFromMessages(raw["messages"])
	}
	env := conv.Envelope(title, id, turns, s.deps.Now())
	return []scrape.Record{{ID: id, Data: env}}, nil
}

// nestedMapping finds an export-format conversation mapping either
// under raw_data or at the top level of the raw result.
func nestedMapping(raw scrape.Raw) map[string]any {
	if rd, ok := raw["raw_data"].(map[string]any); ok {
		if m, ok := rd["mapping"].(map[string]any); ok {
			return m
		}
	}
	if m, ok := raw["mapping"].(map[string]any); ok {
		return m
	}
	return nil
}

// turnsFromMapping flattens a conversation mapping into ordered
// turns, keeping only non-empty user and assistant messages. Node ids
// break create_time ties so the order is stable across runs.
func turnsFromMapping(mapping map[string]any) []conv.Turn {
	type keyed struct {
		turn conv.Turn
		node string
	}
	var items []keyed
	for nodeID, v := range mapping {
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		msg, ok := node["message"].(map[string]any)
		if !ok {
			continue
		}
		role := authorRole(msg["author"])
		if role != "user" && role != "assistant" {
			continue
		}
		text := messageText(msg["content"])
		if text == "" {
			continue
		}
		created, _ := msg["create_time"].(float64)
		items = append(items, keyed{
			turn: conv.Turn{Role: role, Text: text, Time: created},
			node: nodeID,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].turn.Time != items[j].turn.Time {
			return items[i].turn.Time < items[j].turn.Time
		}
		return items[i].node < items[j].node
	})
	turns := make([]conv.Turn, len(items))
	for i, item := range items {
		turns[i] = item.turn
	}
	return turns
}

// turnsFromMessages converts a flat message list into turns in list
// order, skipping entries with no text.
func turnsFromMessages(v any) []conv.Turn {
	var turns []conv.Turn
	for _, m := range mapList(v) {
		text := stringField(m, "text")
		if text == "" {
			text = stringField(m, "content")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		role := stringField(m, "role")
		if role == "" {
			role = "user"
		}
		created, _ := m["create_time"].(float64)
		turns = append(turns, conv.Turn{Role: role, Text: text, Time: created})
	}
	return turns
}

func authorRole(author any) string {
	switch a := author.(type) {
	case map[string]any:
		return stringField(a, "role")
	case string:
		return a
	}
	return ""
}

// messageText resolves export-format content: a text part list, or a
// plain string for pre-flattened messages.
func messageText(content any) string {
	switch c := content.(type) {
	case map[string]any:
		if stringField(c, "content_type") != "text" {
			return ""
		}
		parts, ok := c["parts"].([]any)
		if !ok || len(parts) == 0 {
			return ""
		}
		s, _ := parts[0].(string)
		return strings.TrimSpace(s)
	case string:
		return strings.TrimSpace(c)
	}
	return ""
}
