package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cartscout/models"
)

// Searcher is the web-search collaborator used for hostname discovery
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// SearchClient talks to a Custom Search style REST API
type SearchClient struct {
	baseURL    string
	apiKey     string
	engineID   string
	country    string
	language   string
	httpClient *http.Client
}

// NewSearchClient creates a search client for the configured engine
func NewSearchClient(baseURL, apiKey, engineID, country, language string) *SearchClient {
	return &SearchClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		engineID: engineID,
		country:  country,
		language: language,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// searchResponse mirrors the fields we consume from the API
type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search runs one query and returns its results. Non-2xx responses and
// malformed bodies are treated as an empty result set, never an error
// the scoring loop has to care about.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))
	if c.country != "" {
		params.Set("gl", c.country)
	}
	if c.language != "" {
		params.Set("hl", c.language)
	}

	requestURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ Search API returned status %d for query %q", resp.StatusCode, query)
		return []models.SearchResult{}, nil
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("⚠️ Search API returned malformed body for query %q: %v", query, err)
		return []models.SearchResult{}, nil
	}

	results := make([]models.SearchResult, 0, len(body.Items))
	for _, item := range body.Items {
		results = append(results, models.SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
		})
	}

	return results, nil
}
