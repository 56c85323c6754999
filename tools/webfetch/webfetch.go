package webfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

// Result is the readable text extracted from a fetched page.
type Result struct {
	URL   string
	Title string
	Text  string
}

// Fetcher retrieves a page and extracts its readable text.
type Fetcher interface {
	Exec(ctx context.Context, pageURL string) (Result, error)
}

// HTTPFetcher fetches pages with a plain HTTP client and runs readability
// extraction over the static HTML.
type HTTPFetcher struct {
	Timeout  time.Duration
	MaxChars int
	Client   *http.Client
}

func NewHTTPFetcher(timeout time.Duration, maxChars int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	return &HTTPFetcher{
		Timeout:  timeout,
		MaxChars: maxChars,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Exec(ctx context.Context, pageURL string) (Result, error) {
	if strings.TrimSpace(pageURL) == "" {
		return Result{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Result{}, err
	}
	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return Result{}, fmt.Errorf("readability extraction: %w", err)
	}

	text := article.TextContent
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return Result{URL: pageURL, Title: article.Title, Text: text}, nil
}
