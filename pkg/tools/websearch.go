package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const duckDuckGoURL = "https://api.duckduckgo.com/"

// WebSearch queries the DuckDuckGo Instant Answer API.
type WebSearch struct {
	baseURL    string
	httpClient *http.Client
}

// NewWebSearch creates the web search tool.
func NewWebSearch(timeout time.Duration) *WebSearch {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebSearch{
		baseURL: duckDuckGoURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the tool id.
func (w *WebSearch) Name() string {
	return "web_search"
}

// Description tells the model when to use this tool.
func (w *WebSearch) Description() string {
	return "Search the web for current information, news, and general knowledge. " +
		"Use this when you need up-to-date information or facts about current events, " +
		"companies, people, or any topic that might have recent developments."
}

type instantAnswer struct {
	Answer        string `json:"Answer"`
	AbstractText  string `json:"AbstractText"`
	Definition    string `json:"Definition"`
	RelatedTopics []struct {
		Text   string `json:"Text"`
		Topics []struct {
			Text string `json:"Text"`
		} `json:"Topics"`
	} `json:"RelatedTopics"`
}

// Invoke performs the search and formats the snippets.
func (w *WebSearch) Invoke(ctx context.Context, query string) (string, error) {
	results, err := w.search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error performing web search: %v", err), nil
	}
	if results == "" {
		return "No search results found.", nil
	}
	return fmt.Sprintf("Web search results for '%s':\n\n%s", query, results), nil
}

func (w *WebSearch) search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

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
		return "", fmt.Errorf("search API error (status %d)", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return formatInstantAnswer(answer), nil
}

// formatInstantAnswer flattens the answer into at most five snippets.
func formatInstantAnswer(answer instantAnswer) string {
	snippets := []string{}
	add := func(text string) {
		text = strings.TrimSpace(text)
		if text != "" && len(snippets) < 5 {
			snippets = append(snippets, text)
		}
	}

	add(answer.Answer)
	add(answer.AbstractText)
	add(answer.Definition)
	for _, topic := range answer.RelatedTopics {
		add(topic.Text)
		for _, sub := range topic.Topics {
			add(sub.Text)
		}
	}

	return strings.Join(snippets, "\n")
}
