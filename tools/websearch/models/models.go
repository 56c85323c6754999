package models

import "errors"

// ErrRateLimited is returned when a provider signals request throttling.
var ErrRateLimited = errors.New("web search rate limited")

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
