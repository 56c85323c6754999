package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/krxlab/ipo-advisor/internal/store"
)

// TransportError is an HTTP-level failure or a non-200 response. Its body is
// an error description, never SSE frames.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Body)
}

// API is the HTTP client for the advisory service.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &API{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// StreamAdvice starts an advisory run and returns the raw SSE body. The
// caller owns the ReadCloser; closing it cancels the stream.
func (a *API) StreamAdvice(ctx context.Context, topic string, enableRAG bool) (io.ReadCloser, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"topic":      topic,
		"enable_rag": enableRAG,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", a.BaseURL+"/api/v1/workflow/advice/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Status: 0, Body: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &TransportError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}

// ListHistory returns persisted consultations with skip/limit paging.
func (a *API) ListHistory(ctx context.Context, skip, limit int) ([]store.AdviceItem, error) {
	url := fmt.Sprintf("%s/api/v1/history?skip=%d&limit=%d", a.BaseURL, skip, limit)
	var items []store.AdviceItem
	if err := a.getJSON(ctx, url, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetHistory returns one consultation or store.ErrNotFound.
func (a *API) GetHistory(ctx context.Context, id int64) (store.AdviceItem, error) {
	var item store.AdviceItem
	err := a.getJSON(ctx, fmt.Sprintf("%s/api/v1/history/%d", a.BaseURL, id), &item)
	return item, err
}

// CreateHistory persists a completed consultation.
func (a *API) CreateHistory(ctx context.Context, topic, messages, docs string) (store.AdviceItem, error) {
	payload, err := json.Marshal(map[string]string{
		"topic":    topic,
		"messages": messages,
		"docs":     docs,
	})
	if err != nil {
		return store.AdviceItem{}, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", a.BaseURL+"/api/v1/history", bytes.NewReader(payload))
	if err != nil {
		return store.AdviceItem{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return store.AdviceItem{}, &TransportError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return store.AdviceItem{}, &TransportError{Status: resp.StatusCode, Body: string(body)}
	}
	var item store.AdviceItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return store.AdviceItem{}, err
	}
	return item, nil
}

// DeleteHistory removes one consultation or returns store.ErrNotFound.
func (a *API) DeleteHistory(ctx context.Context, id int64) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", fmt.Sprintf("%s/api/v1/history/%d", a.BaseURL, id), nil)
	if err != nil {
		return err
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return store.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &TransportError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (a *API) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return store.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &TransportError{Status: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
