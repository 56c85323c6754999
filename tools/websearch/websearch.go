package websearch

import (
	"context"
	"errors"

	"github.com/krxlab/ipo-advisor/tools/websearch/brave"
	"github.com/krxlab/ipo-advisor/tools/websearch/models"
	"github.com/krxlab/ipo-advisor/tools/websearch/serper"
)

// Searcher is the contract external web search providers implement.
type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// ErrRateLimited is returned when the provider signals request throttling.
// Callers are expected to abort the remaining queries in the batch.
var ErrRateLimited = models.ErrRateLimited

// NewSearcher creates a Searcher for the configured provider.
func NewSearcher(provider Provider, apiKey string) (Searcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
