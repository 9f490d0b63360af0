package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	wikipediaURL        = "https://en.wikipedia.org/w/api.php"
	wikipediaMaxResults = 3
	wikipediaMaxChars   = 4000
)

// Wikipedia searches the MediaWiki API and returns page summaries.
type Wikipedia struct {
	baseURL    string
	httpClient *http.Client
}

// NewWikipedia creates the encyclopedia tool.
func NewWikipedia(timeout time.Duration) *Wikipedia {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Wikipedia{
		baseURL: wikipediaURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the tool id.
func (w *Wikipedia) Name() string {
	return "wikipedia"
}

// Description tells the model when to use this tool.
func (w *Wikipedia) Description() string {
	return "Search Wikipedia for encyclopedic knowledge, historical information, " +
		"scientific concepts, biographies, and well-established facts. " +
		"Use this for academic or educational queries that need reliable, structured information."
}

type wikipediaResponse struct {
	Query struct {
		Pages map[string]struct {
			Index   int    `json:"index"`
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Invoke searches for the query and formats the top pages.
func (w *Wikipedia) Invoke(ctx context.Context, query string) (string, error) {
	results, err := w.search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error searching Wikipedia: %v", err), nil
	}
	if results == "" {
		return fmt.Sprintf("No Wikipedia articles found for '%s'.", query), nil
	}
	return fmt.Sprintf("Wikipedia results for '%s':\n\n%s", query, results), nil
}

func (w *Wikipedia) search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrlimit", fmt.Sprintf("%d", wikipediaMaxResults))
	params.Set("prop", "extracts")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("MediaWiki API error (status %d)", resp.StatusCode)
	}

	var decoded wikipediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	type page struct {
		index   int
		title   string
		extract string
	}
	pages := []page{}
	for _, p := range decoded.Query.Pages {
		pages = append(pages, page{index: p.Index, title: p.Title, extract: p.Extract})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].index < pages[j].index })

	sections := []string{}
	for _, p := range pages {
		sections = append(sections, fmt.Sprintf("Page: %s\nSummary: %s", p.title, strings.TrimSpace(p.extract)))
	}

	result := strings.Join(sections, "\n\n")
	if len(result) > wikipediaMaxChars {
		result = result[:wikipediaMaxChars]
	}
	return result, nil
}
