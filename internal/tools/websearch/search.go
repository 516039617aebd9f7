package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/zapdoslabs/relay/internal/agent"
)

// Backend selects where news searches go.
type Backend string

const (
	BackendBrave Backend = "brave"
	BackendMock  Backend = "mock"

	// DefaultURL is the Brave News Search endpoint.
	DefaultURL = "https://api.search.brave.com/res/v1/news/search"

	// ToolName is the name the model uses to call the tool.
	ToolName = "search_tool"

	// maxCacheSize limits the number of cached search responses to prevent unbounded memory growth
	maxCacheSize = 1000

	// maxResponseBytes bounds how much of an upstream body is read.
	maxResponseBytes = 4 << 20
)

// Config holds configuration for the news search tool.
type Config struct {
	Backend Backend
	APIKey  string

	// URL overrides the Brave endpoint.
	URL string

	// ResultCount is sent as the count parameter. Zero leaves it to Brave.
	ResultCount int

	// CacheTTL is how long a response is reused for the same query.
	// Default: 5m
	CacheTTL time.Duration

	// Timeout bounds one upstream request.
	// Default: 15s
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Params are the arguments the model passes to the tool.
type Params struct {
	Query string `json:"query" jsonschema:"required,minLength=1,description=Search keywords. Use a company or person name or a topic."`
}

// Response is the reduced search result handed back to the model.
type Response struct {
	Query   *QueryInfo `json:"query,omitempty"`
	Results []Result   `json:"results"`
}

// QueryInfo echoes the query as the backend understood it.
type QueryInfo struct {
	Original string `json:"original"`
}

// Result is a single news article.
type Result struct {
	Title         string   `json:"title"`
	Age           string   `json:"age,omitempty"`
	ExtraSnippets []string `json:"extra_snippets,omitempty"`
	URL           string   `json:"url"`
}

type cacheEntry struct {
	content   string
	expiresAt time.Time
}

// Tool implements agent.Tool for recent news search.
type Tool struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	schema     json.RawMessage

	cache   map[string]*cacheEntry
	cacheMu sync.RWMutex
	now     func() time.Time
}

// New creates a news search tool. Zero config fields take their defaults.
func New(config Config) *Tool {
	if config.Backend == "" {
		config.Backend = BackendBrave
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tool{
		config:     config,
		httpClient: client,
		logger:     logger.With("tool", ToolName),
		schema:     reflectSchema(),
		cache:      make(map[string]*cacheEntry),
		now:        time.Now,
	}
}

// Name returns the tool name for registration with the agent runtime.
func (t *Tool) Name() string {
	return ToolName
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Search recent news articles. Useful for questions about companies, people, markets and current events."
}

// Schema returns the JSON schema for tool parameters used by LLMs.
func (t *Tool) Schema() json.RawMessage {
	return t.schema
}

// LogLine renders the progress line shown while the turn is running.
func (t *Tool) LogLine(params json.RawMessage) string {
	var p Params
	if err := json.Unmarshal(params, &p); err != nil {
		return ""
	}
	return "Searched for: " + p.Query
}

// Execute runs the search, serving repeated queries from the cache.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p Params
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", agent.ErrInvalidArgs, err)
	}
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", agent.ErrInvalidArgs)
	}

	key := string(t.config.Backend) + ":" + query
	if cached, ok := t.getFromCache(key); ok {
		t.logger.Debug("search cache hit", "query", query)
		return &agent.ToolResult{Content: cached}, nil
	}

	var response *Response
	var err error
	switch t.config.Backend {
	case BackendMock:
		response = &Response{Results: []Result{}}
	case BackendBrave:
		response, err = t.searchBrave(ctx, query)
	default:
		return nil, fmt.Errorf("unknown search backend %q", t.config.Backend)
	}
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("format search response: %w", err)
	}
	content := string(output)
	t.putInCache(key, content)

	t.logger.Info("searched", "query", query, "results", len(response.Results))
	return &agent.ToolResult{Content: content}, nil
}

// searchBrave performs a news search using the Brave Search API and reduces
// the payload to the fields the model needs.
func (t *Tool) searchBrave(ctx context.Context, query string) (*Response, error) {
	if t.config.APIKey == "" {
		return nil, fmt.Errorf("brave search: API key not configured")
	}

	searchURL, err := url.Parse(t.config.URL)
	if err != nil {
		return nil, fmt.Errorf("brave search: invalid URL: %w", err)
	}
	q := searchURL.Query()
	q.Set("q", query)
	if t.config.ResultCount > 0 {
		q.Set("count", strconv.Itoa(t.config.ResultCount))
	}
	searchURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave search: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-subscription-token", t.config.APIKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("brave search: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var braveResp struct {
		Query struct {
			Original string `json:"original"`
		} `json:"query"`
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Age           string   `json:"age"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &braveResp); err != nil {
		return nil, fmt.Errorf("brave search: parse response: %w", err)
	}

	original := braveResp.Query.Original
	if original == "" {
		original = query
	}
	results := make([]Result, 0, len(braveResp.Results))
	for _, r := range braveResp.Results {
		results = append(results, Result{
			Title:         r.Title,
			Age:           r.Age,
			ExtraSnippets: r.ExtraSnippets,
			URL:           r.URL,
		})
	}
	return &Response{
		Query:   &QueryInfo{Original: original},
		Results: results,
	}, nil
}

// getFromCache retrieves a cached response if it exists and hasn't expired.
func (t *Tool) getFromCache(key string) (string, bool) {
	if t.config.CacheTTL < 0 {
		return "", false
	}
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()

	entry, exists := t.cache[key]
	if !exists || t.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.content, true
}

// putInCache stores a response in the cache with TTL.
func (t *Tool) putInCache(key, content string) {
	if t.config.CacheTTL < 0 {
		return
	}
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	now := t.now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}

	// If still at capacity after cleanup, evict the entry closest to expiry.
	for len(t.cache) >= maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
			}
		}
		delete(t.cache, oldestKey)
	}

	t.cache[key] = &cacheEntry{
		content:   content,
		expiresAt: now.Add(t.config.CacheTTL),
	}
}

func reflectSchema() json.RawMessage {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := r.Reflect(&Params{})
	schema.Version = ""
	out, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
