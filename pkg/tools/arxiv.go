package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	arxivURL        = "http://export.arxiv.org/api/query"
	arxivMaxResults = 5
	arxivMaxChars   = 4000
)

// Arxiv searches the arXiv Atom API for papers.
type Arxiv struct {
	baseURL    string
	httpClient *http.Client
}

// NewArxiv creates the paper search tool.
func NewArxiv(timeout time.Duration) *Arxiv {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Arxiv{
		baseURL: arxivURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the tool id.
func (a *Arxiv) Name() string {
	return "arxiv"
}

// Description tells the model when to use this tool.
func (a *Arxiv) Description() string {
	return "Search ArXiv for research papers, academic publications, and scientific literature. " +
		"Use this for cutting-edge research, technical papers, preprints, and academic studies " +
		"in physics, mathematics, computer science, and other scientific fields."
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// Invoke searches for papers and formats the top entries.
func (a *Arxiv) Invoke(ctx context.Context, query string) (string, error) {
	results, err := a.search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error searching ArXiv: %v", err), nil
	}
	if results == "" {
		return fmt.Sprintf("No ArXiv papers found for '%s'.", query), nil
	}
	return fmt.Sprintf("ArXiv papers for '%s':\n\n%s", query, results), nil
}

func (a *Arxiv) search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", arxivMaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arXiv API error (status %d)", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	papers := []string{}
	for _, entry := range feed.Entries {
		authors := make([]string, 0, len(entry.Authors))
		for _, author := range entry.Authors {
			authors = append(authors, strings.TrimSpace(author.Name))
		}

		published := entry.Published
		if len(published) >= 10 {
			published = published[:10]
		}

		papers = append(papers, fmt.Sprintf(
			"Published: %s\nTitle: %s\nAuthors: %s\nSummary: %s",
			published,
			strings.TrimSpace(entry.Title),
			strings.Join(authors, ", "),
			strings.TrimSpace(entry.Summary),
		))
	}

	result := strings.Join(papers, "\n\n")
	if len(result) > arxivMaxChars {
		result = result[:arxivMaxChars]
	}
	return result, nil
}
