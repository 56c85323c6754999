package retrieval

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/krxlab/ipo-advisor/config"
	"github.com/krxlab/ipo-advisor/internal/index"
	"github.com/krxlab/ipo-advisor/provider"
	"github.com/krxlab/ipo-advisor/tools/webfetch"
	"github.com/krxlab/ipo-advisor/tools/websearch"
	"github.com/krxlab/ipo-advisor/tools/wiki"
)

const (
	refineSystemPrompt = "당신은 검색 전문가입니다. 주어진 주제에 대해 가장 관련성 높은 검색어를 제안해주세요."
	refineTemplate     = "'%s'에 대해 %s 웹검색에 적합한 %d개의 검색어를 제안해주세요. 각 검색어는 25자 이내로 작성하고 콤마로 구분하세요. 검색어만 제공하고 설명은 하지 마세요."
)

// perspectiveMap parameterizes query refinement by agent role.
var perspectiveMap = map[string]string{
	"IPO_AGENT": "금융시장에 금융자본을 상장하기위한 사실과 정보를 찾고자 합니다.",
}

// LocalSearcher is the nearest-neighbor boundary of the local document
// store. *index.Index implements it.
type LocalSearcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// Gateway unifies local index search and external web search behind one
// ranked document list with a deterministic fallback chain:
// local index -> web search -> encyclopedia -> static default.
type Gateway struct {
	provider provider.Provider
	index    LocalSearcher
	searcher websearch.Searcher
	fetcher  webfetch.Fetcher
	wiki     *wiki.Client
	cache    *Cache
	limiter  *Limiter
	cfg      config.RetrievalConfig
	search   config.SearchConfig
	logger   *log.Logger
}

// Option configures gateway construction.
type Option func(*Gateway)

func WithSearcher(s websearch.Searcher) Option { return func(g *Gateway) { g.searcher = s } }
func WithFetcher(f webfetch.Fetcher) Option    { return func(g *Gateway) { g.fetcher = f } }
func WithWiki(w *wiki.Client) Option           { return func(g *Gateway) { g.wiki = w } }
func WithCache(c *Cache) Option                { return func(g *Gateway) { g.cache = c } }
func WithLimiter(l *Limiter) Option            { return func(g *Gateway) { g.limiter = l } }

func NewGateway(p provider.Provider, ix LocalSearcher, cfg config.RetrievalConfig, searchCfg config.SearchConfig, opts ...Option) *Gateway {
	g := &Gateway{
		provider: p,
		index:    ix,
		cfg:      cfg,
		search:   searchCfg,
		logger:   log.New(log.Writer(), "[RETR] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.limiter == nil {
		g.limiter = NewLimiter(searchCfg.MinDelay, searchCfg.MaxDelay)
	}
	return g
}

// Retrieve returns reference documents for the topic. It never returns an
// empty list: when every source fails the static default document is the
// availability floor. The only error returned is context cancellation.
func (g *Gateway) Retrieve(ctx context.Context, topic, role string, maxResults int) ([]Document, error) {
	if maxResults <= 0 {
		maxResults = g.cfg.MaxResults
	}

	if docs, ok := g.cache.Get(ctx, role, topic); ok {
		cacheHits.Inc()
		return docs, nil
	}

	queries := g.refineQueries(ctx, topic, role)

	local := g.searchLocal(ctx, queries, maxResults)
	if len(local) >= g.localThreshold() {
		g.logger.Printf("local index returned %d documents, skipping external search", len(local))
		documentsTotal.WithLabelValues("local").Add(float64(len(local)))
		g.cache.Set(ctx, role, topic, local)
		return local, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.logger.Printf("local index returned %d documents, trying external search", len(local))
	external := g.searchExternal(ctx, queries, maxResults)

	all := append(local, external...)
	if len(all) == 0 {
		g.logger.Printf("all sources empty, serving default document")
		documentsTotal.WithLabelValues("default").Inc()
		return DefaultDocuments(), ctx.Err()
	}

	documentsTotal.WithLabelValues("local").Add(float64(len(local)))
	g.cache.Set(ctx, role, topic, all)
	return all, ctx.Err()
}

func (g *Gateway) localThreshold() int {
	if g.cfg.LocalThreshold > 0 {
		return g.cfg.LocalThreshold
	}
	return 2
}

// refineQueries expands the topic into up to queryLimit search queries via a
// completion call. A failed call falls back to the topic itself as the sole
// query rather than aborting retrieval.
func (g *Gateway) refineQueries(ctx context.Context, topic, role string) []string {
	limit := g.cfg.QueryLimit
	if limit <= 0 {
		limit = 3
	}
	perspective, ok := perspectiveMap[role]
	if !ok || g.provider == nil {
		return []string{topic}
	}

	prompt := fmt.Sprintf(refineTemplate, topic, perspective, limit)
	out, err := g.provider.Completion(ctx, refineSystemPrompt, prompt)
	if err != nil {
		g.logger.Printf("query refinement failed, using topic as query: %v", err)
		return []string{topic}
	}

	var queries []string
	for _, q := range strings.Split(out, ",") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) >= limit {
			break
		}
	}
	if len(queries) == 0 {
		return []string{topic}
	}
	return queries
}

// searchLocal runs every query against the local index, filtering noise and
// deduplicating by a content-prefix fingerprint. A single query failure is
// skipped; an unavailable index downgrades the whole local phase.
func (g *Gateway) searchLocal(ctx context.Context, queries []string, maxResults int) []Document {
	if g.index == nil {
		return nil
	}

	var docs []Document
	seen := make(map[uint64]struct{})

	for _, query := range queries {
		hits, err := g.index.Search(ctx, query, maxResults)
		if err != nil {
			if errors.Is(err, index.ErrNotLoaded) {
				g.logger.Printf("local retrieval unavailable: %v", err)
				queryFailures.WithLabelValues("local").Inc()
				return nil
			}
			g.logger.Printf("local search failed (%s): %v", query, err)
			queryFailures.WithLabelValues("local").Inc()
			continue
		}
		found := 0
		for _, hit := range hits {
			if utf8.RuneCountInString(hit.Content) <= g.minContentChars() {
				continue
			}
			fp := contentFingerprint(hit.Content, g.dedupPrefixChars())
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			docs = append(docs, Document{
				Content: hit.Content,
				Metadata: Metadata{
					Source:  hit.Source,
					Section: hit.Section,
					Topic:   hit.Topic,
					Query:   query,
					File:    hit.Source,
				},
			})
			found++
		}
		g.logger.Printf("query %q matched %d local documents", query, found)
	}
	return docs
}

// searchExternal queries the web search provider first, then the encyclopedia
// lookup when fewer than two documents were collected.
func (g *Gateway) searchExternal(ctx context.Context, queries []string, maxResults int) []Document {
	docs := g.searchWeb(ctx, queries, maxResults)
	if len(docs) < 2 && g.wiki != nil {
		docs = append(docs, g.searchWiki(ctx, queries)...)
	}
	return docs
}

func (g *Gateway) searchWeb(ctx context.Context, queries []string, maxResults int) []Document {
	if g.searcher == nil {
		return nil
	}

	var docs []Document
	for i, query := range queries {
		if i > 0 {
			if err := g.limiter.Wait(ctx); err != nil {
				return docs
			}
		}
		results, err := g.searcher.Discover(ctx, query, maxResults)
		if err != nil {
			queryFailures.WithLabelValues("web").Inc()
			if errors.Is(err, websearch.ErrRateLimited) {
				g.logger.Printf("web search rate limited, aborting remaining queries")
				break
			}
			g.logger.Printf("web search failed (%s): %v", query, err)
			continue
		}
		for _, r := range results {
			body := r.Snippet
			if utf8.RuneCountInString(body) <= g.minSnippetChars() {
				body = g.expandSnippet(ctx, r.URL, body)
			}
			if utf8.RuneCountInString(body) <= g.minSnippetChars() {
				continue
			}
			docs = append(docs, Document{
				Content: body,
				Metadata: Metadata{
					Source:  r.URL,
					Section: "web",
					Topic:   r.Title,
					Query:   query,
				},
			})
			documentsTotal.WithLabelValues("web").Inc()
		}
	}
	return docs
}

// expandSnippet fetches the page behind a too-short search snippet and
// extracts its readable text. Any failure keeps the original snippet.
func (g *Gateway) expandSnippet(ctx context.Context, pageURL, snippet string) string {
	if g.fetcher == nil || pageURL == "" {
		return snippet
	}
	res, err := g.fetcher.Exec(ctx, pageURL)
	if err != nil {
		g.logger.Printf("snippet expansion failed (%s): %v", pageURL, err)
		return snippet
	}
	if utf8.RuneCountInString(res.Text) > utf8.RuneCountInString(snippet) {
		return res.Text
	}
	return snippet
}

func (g *Gateway) searchWiki(ctx context.Context, queries []string) []Document {
	var docs []Document
	for _, query := range queries {
		summary, err := g.wiki.Lookup(ctx, query)
		if err != nil {
			g.logger.Printf("wikipedia lookup failed (%s): %v", query, err)
			queryFailures.WithLabelValues("wiki").Inc()
			continue
		}
		docs = append(docs, Document{
			Content: summary.Extract,
			Metadata: Metadata{
				Source:  summary.PageURL,
				Section: "wikipedia",
				Topic:   summary.Title,
				Query:   query,
			},
		})
		documentsTotal.WithLabelValues("wiki").Inc()
	}
	return docs
}

func (g *Gateway) minContentChars() int {
	if g.cfg.MinContentChars > 0 {
		return g.cfg.MinContentChars
	}
	return 30
}

func (g *Gateway) minSnippetChars() int {
	if g.search.MinSnippetChars > 0 {
		return g.search.MinSnippetChars
	}
	return 50
}

func (g *Gateway) dedupPrefixChars() int {
	if g.cfg.DedupPrefixChars > 0 {
		return g.cfg.DedupPrefixChars
	}
	return 100
}

// contentFingerprint hashes the leading prefix of a document so near-identical
// chunks collapse to one entry within a retrieval call.
func contentFingerprint(content string, prefixChars int) uint64 {
	runes := []rune(content)
	if len(runes) > prefixChars {
		runes = runes[:prefixChars]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(string(runes)))
	return h.Sum64()
}
