package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

const (
	bingEndpoint = "https://api.bing.microsoft.com/v7.0/search"
	// maxSearchResults bounds how many results feed back to the model.
	maxSearchResults = 5
)

// BingClient queries the Bing Web Search v7 API.
type BingClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBingClient creates a search client. Returns nil when the key is
// empty so callers can pass the result straight to NewExecutor.
func NewBingClient(apiKey string, logger *slog.Logger) *BingClient {
	if apiKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BingClient{
		apiKey:     apiKey,
		endpoint:   bingEndpoint,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

// bingResponse holds the subset of the v7 response we consume.
type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// Search returns up to maxSearchResults web results for the query.
func (c *BingClient) Search(ctx context.Context, query string) ([]Source, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprint(maxSearchResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned %d", resp.StatusCode)
	}

	var body bingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := body.WebPages.Value
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			URL:     r.URL,
			Title:   r.Name,
			Domain:  hostOf(r.URL),
			Snippet: r.Snippet,
			Favicon: faviconURL(r.URL),
		})
	}

	c.logger.Debug("web search completed", "query", query, "results", len(sources))
	return sources, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// faviconURL points at Google's favicon proxy for the result's host.
func faviconURL(raw string) string {
	host := hostOf(raw)
	if host == "" {
		return ""
	}
	return "https://www.google.com/s2/favicons?domain=" + url.QueryEscape(host) + "&sz=32"
}
