package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Summary is the extract returned by the Wikipedia REST summary endpoint.
type Summary struct {
	Title   string
	Extract string
	PageURL string
}

// Client looks up article summaries on the Korean Wikipedia REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    "https://ko.wikipedia.org/api/rest_v1",
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Lookup fetches the summary for a title. A missing page is an error; callers
// treat any failure as "this query produced nothing" and move on.
func (c *Client) Lookup(ctx context.Context, title string) (Summary, error) {
	endpoint := fmt.Sprintf("%s/page/summary/%s", c.BaseURL, url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return Summary{}, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Summary{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Summary{}, fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}

	var raw struct {
		Title       string `json:"title"`
		Extract     string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Summary{}, err
	}
	if raw.Extract == "" {
		return Summary{}, fmt.Errorf("no extract for %q", title)
	}
	return Summary{Title: raw.Title, Extract: raw.Extract, PageURL: raw.ContentURLs.Desktop.Page}, nil
}
