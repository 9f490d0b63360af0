package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const webFetchMaxChars = 8000

// WebFetch renders a page in headless Chrome and returns its visible
// text. The browser process is launched on first use and shared across
// invocations until Close.
type WebFetch struct {
	timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
	cleanup func()
}

// NewWebFetch creates the page fetch tool.
func NewWebFetch(timeout time.Duration) *WebFetch {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WebFetch{
		timeout: timeout,
	}
}

// Name returns the tool id.
func (w *WebFetch) Name() string {
	return "web_fetch"
}

// Description tells the model when to use this tool.
func (w *WebFetch) Description() string {
	return "Fetch a specific web page by URL and return its visible text content. " +
		"Use this when search results reference a page worth reading in full."
}

// Invoke loads the URL and extracts the page text.
func (w *WebFetch) Invoke(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := normalizePageURL(rawURL)
	if err != nil {
		return fmt.Sprintf("Error fetching page: %v", err), nil
	}

	text, err := w.fetch(ctx, pageURL)
	if err != nil {
		return fmt.Sprintf("Error fetching page: %v", err), nil
	}
	if text == "" {
		return fmt.Sprintf("No readable text found at %s.", pageURL), nil
	}
	return fmt.Sprintf("Page text for %s:\n\n%s", pageURL, text), nil
}

func (w *WebFetch) fetch(ctx context.Context, pageURL string) (string, error) {
	browser, err := w.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(w.timeout)

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("failed to load page: %w", err)
	}

	result, err := page.Eval(`() => document.body.innerText`)
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}

	text := strings.TrimSpace(result.Value.String())
	if len(text) > webFetchMaxChars {
		text = text[:webFetchMaxChars]
	}
	return text, nil
}

func (w *WebFetch) ensureBrowser() (*rod.Browser, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.browser != nil {
		return w.browser, nil
	}

	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	w.browser = browser
	w.cleanup = l.Cleanup
	return browser, nil
}

// Close shuts down the shared browser process.
func (w *WebFetch) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.browser == nil {
		return nil
	}

	err := w.browser.Close()
	if w.cleanup != nil {
		w.cleanup()
	}
	w.browser = nil
	w.cleanup = nil
	return err
}

// normalizePageURL validates the target and defaults to https.
func normalizePageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url host is required")
	}
	return parsed.String(), nil
}
