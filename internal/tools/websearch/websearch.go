// Package websearch exposes a web search operation backed by a
// Tavily-compatible search API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

const (
	defaultEndpoint   = "https://api.tavily.com/search"
	defaultMaxResults = 5
	maxResults        = 20
)

// Config configures the search capability.
type Config struct {
	// APIKey authenticates against the search API.
	APIKey string

	// Endpoint overrides the search API URL.
	Endpoint string

	// HTTPClient overrides the default client (10s timeout).
	HTTPClient *http.Client
}

// Capability performs web searches on behalf of the model.
type Capability struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// New creates a search capability. The API key is required.
func New(config Config) (*Capability, error) {
	if config.APIKey == "" {
		return nil, errors.New("websearch: API key is required")
	}
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Capability{
		apiKey:   config.APIKey,
		endpoint: config.Endpoint,
		client:   config.HTTPClient,
	}, nil
}

type searchArgs struct {
	Query      string `json:"query" jsonschema:"description=Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Number of results to return, default 5"`
}

func (c *Capability) Operations() []tools.Operation {
	return []tools.Operation{
		{
			Name: "web_search",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("web_search",
					"Search the web and return the top results with snippets.",
					&searchArgs{}),
			},
			Params: []tools.Param{
				{Name: "query", Kind: tools.KindString, Required: true},
				{Name: "max_results", Kind: tools.KindInt},
			},
			Handler: c.search,
		},
	}
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (c *Capability) search(ctx context.Context, args []any) (*models.ToolResult, error) {
	query, ok := args[0].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return tools.Fail("web_search: query is required")
	}
	limit := defaultMaxResults
	if n, ok := args[1].(int); ok && n > 0 {
		limit = n
	}
	if limit > maxResults {
		limit = maxResults
	}

	response, err := c.query(ctx, query, limit)
	if err != nil {
		return tools.Failf("web_search: %v", err)
	}
	return tools.Result(formatResults(query, response.Results))
}

func (c *Capability) query(ctx context.Context, query string, limit int) (*searchResponse, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: limit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search API returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

// formatResults renders search results as the text block fed back to the
// model.
func formatResults(query string, results []searchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(r.Content, 400))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
