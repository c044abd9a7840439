// Package websearch gathers web search results for a chapter through a
// pluggable search endpoint, with a per-chapter read-through cache.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Searcher answers a single search query with a text summary.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// searchInstructions accompanies every query sent to the endpoint.
const searchInstructions = "Focus on finding recent developments, best practices, and authoritative sources."

// HTTPSearcher posts {"query", "instructions"} as JSON and expects {"text"}.
type HTTPSearcher struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSearcher creates a searcher for endpoint.
func NewHTTPSearcher(endpoint, apiKey string, timeout time.Duration) *HTTPSearcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPSearcher{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query        string `json:"query"`
	Instructions string `json:"instructions"`
}

type searchResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Search sends query to the endpoint.
func (s *HTTPSearcher) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(searchRequest{Query: query, Instructions: searchInstructions})
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out searchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse search response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("search endpoint: %s", out.Error)
	}
	return out.Text, nil
}
