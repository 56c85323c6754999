package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/krxlab/ipo-advisor/config"
	"github.com/krxlab/ipo-advisor/internal/index"
	"github.com/krxlab/ipo-advisor/tools/webfetch"
	"github.com/krxlab/ipo-advisor/tools/websearch"
	"github.com/krxlab/ipo-advisor/tools/websearch/models"
)

const longKorean = "코스닥시장 상장을 위해서는 자기자본 30억원 이상 또는 시가총액 90억원 이상의 규모 요건을 충족해야 하며, 경영 성과와 감사 의견 요건도 함께 심사됩니다."

type fakeLLM struct {
	refined string
	err     error
}

func (f *fakeLLM) Completion(context.Context, string, string) (string, error) {
	return f.refined, f.err
}

func (f *fakeLLM) CreateEmbedding(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

type fakeLocal struct {
	hits    []index.Hit
	err     error
	queries []string
}

func (f *fakeLocal) Search(_ context.Context, query string, _ int) ([]index.Hit, error) {
	f.queries = append(f.queries, query)
	return f.hits, f.err
}

type fakeSearcher struct {
	results [][]models.Result
	errs    []error
	calls   int
}

func (f *fakeSearcher) Discover(context.Context, string, int) ([]models.Result, error) {
	i := f.calls
	f.calls++
	var res []models.Result
	var err error
	if i < len(f.results) {
		res = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

type fakeFetcher struct {
	text  string
	err   error
	calls int
}

func (f *fakeFetcher) Exec(_ context.Context, pageURL string) (webfetch.Result, error) {
	f.calls++
	return webfetch.Result{URL: pageURL, Text: f.text}, f.err
}

func localHit(content string) index.Hit {
	return index.Hit{Document: index.Document{
		ID:      "d1",
		Content: content,
		Source:  "listing_guide.pdf",
		Section: "코스닥",
		Topic:   "상장 요건",
	}}
}

func testGateway(llm *fakeLLM, local LocalSearcher, opts ...Option) *Gateway {
	cfg := config.RetrievalConfig{MaxResults: 5}
	search := config.SearchConfig{MinDelay: time.Millisecond, MaxDelay: time.Millisecond}
	opts = append(opts, WithLimiter(NewLimiter(time.Millisecond, time.Millisecond)))
	return NewGateway(llm, local, cfg, search, opts...)
}

func TestRetrieveNeverReturnsEmpty(t *testing.T) {
	g := testGateway(&fakeLLM{refined: "검색어"}, &fakeLocal{})

	docs, err := g.Retrieve(context.Background(), "양자컴퓨팅 스타트업 상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected the default document, got %d docs", len(docs))
	}
	if docs[0].Metadata.Source != DefaultSource {
		t.Fatalf("expected default source %q, got %q", DefaultSource, docs[0].Metadata.Source)
	}
	if !strings.Contains(docs[0].Content, "KRX") {
		t.Fatalf("default document lost its content: %q", docs[0].Content)
	}
}

func TestRetrieveShortCircuitsOnLocalResults(t *testing.T) {
	local := &fakeLocal{hits: []index.Hit{
		localHit(longKorean),
		localHit("질적 심사 항목으로는 기업 계속성, 경영 투명성, 경영 안정성이 검토되며 투자자 보호와 공익 실현 여부도 함께 판단 대상이 됩니다."),
	}}
	searcher := &fakeSearcher{}
	g := testGateway(&fakeLLM{refined: "코스닥 상장 요건"}, local, WithSearcher(searcher))

	docs, err := g.Retrieve(context.Background(), "코스닥 상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 local docs, got %d", len(docs))
	}
	if searcher.calls != 0 {
		t.Fatalf("web search must not run when the local index satisfies the threshold, got %d calls", searcher.calls)
	}
	for _, d := range docs {
		if d.Metadata.Source != "listing_guide.pdf" {
			t.Fatalf("expected local source, got %q", d.Metadata.Source)
		}
	}
}

func TestRetrieveFallsThroughOnThinLocalResults(t *testing.T) {
	local := &fakeLocal{hits: []index.Hit{localHit(longKorean)}}
	searcher := &fakeSearcher{results: [][]models.Result{{
		{Title: "상장 절차 안내", URL: "https://example.com/ipo", Snippet: longKorean},
	}}}
	g := testGateway(&fakeLLM{refined: "코스닥 상장"}, local, WithSearcher(searcher))

	docs, err := g.Retrieve(context.Background(), "코스닥 상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if searcher.calls == 0 {
		t.Fatal("expected web search below the local threshold")
	}
	if len(docs) != 2 {
		t.Fatalf("expected local+web docs, got %d", len(docs))
	}
	if docs[0].Metadata.Source != "listing_guide.pdf" || docs[1].Metadata.Source != "https://example.com/ipo" {
		t.Fatalf("expected local before web, got %q then %q", docs[0].Metadata.Source, docs[1].Metadata.Source)
	}
}

func TestRetrieveLocalIndexUnavailable(t *testing.T) {
	local := &fakeLocal{err: index.ErrNotLoaded}
	searcher := &fakeSearcher{results: [][]models.Result{{
		{Title: "상장 안내", URL: "https://example.com/a", Snippet: longKorean},
	}}}
	g := testGateway(&fakeLLM{refined: "상장"}, local, WithSearcher(searcher))

	docs, err := g.Retrieve(context.Background(), "상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 || docs[0].Metadata.Section != "web" {
		t.Fatalf("expected web-only docs when the index is unavailable, got %+v", docs)
	}
}

func TestRetrieveRateLimitAbortsRemainingQueries(t *testing.T) {
	searcher := &fakeSearcher{errs: []error{websearch.ErrRateLimited}}
	g := testGateway(&fakeLLM{refined: "검색어1, 검색어2, 검색어3"}, &fakeLocal{}, WithSearcher(searcher))

	docs, err := g.Retrieve(context.Background(), "상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if searcher.calls != 1 {
		t.Fatalf("rate limit must abort the remaining queries, got %d calls", searcher.calls)
	}
	if len(docs) != 1 || docs[0].Metadata.Source != DefaultSource {
		t.Fatalf("expected default document after aborted search, got %+v", docs)
	}
}

func TestRetrieveFiltersNoiseAndDuplicates(t *testing.T) {
	shared := strings.Repeat("동일한 문서 앞부분입니다. ", 10)
	local := &fakeLocal{hits: []index.Hit{
		localHit("짧은 문서"), // below min content length
		localHit(shared + "첫 번째 본문"),
		localHit(shared + "두 번째 본문"), // same 100-rune prefix
		localHit(longKorean),
	}}
	g := testGateway(&fakeLLM{refined: "상장"}, local)

	docs, err := g.Retrieve(context.Background(), "상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected noise and duplicates dropped, got %d docs: %+v", len(docs), docs)
	}
}

func TestRefineQueriesFallsBackToTopic(t *testing.T) {
	local := &fakeLocal{hits: []index.Hit{localHit(longKorean), localHit(longKorean + " 별도 본문.")}}
	g := testGateway(&fakeLLM{err: errors.New("llm down")}, local)

	if _, err := g.Retrieve(context.Background(), "핀테크 상장", "IPO_AGENT", 5); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(local.queries) != 1 || local.queries[0] != "핀테크 상장" {
		t.Fatalf("expected the raw topic as sole query, got %v", local.queries)
	}
}

func TestRefineQueriesSplitsAndTrims(t *testing.T) {
	local := &fakeLocal{}
	g := testGateway(&fakeLLM{refined: " 코스닥 상장 요건 , 상장 예비심사 , 상장 주관사 , 네번째는 버려짐 "}, local)

	_, err := g.Retrieve(context.Background(), "상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	want := []string{"코스닥 상장 요건", "상장 예비심사", "상장 주관사"}
	if len(local.queries) != len(want) {
		t.Fatalf("expected %d queries, got %v", len(want), local.queries)
	}
	for i, q := range want {
		if local.queries[i] != q {
			t.Fatalf("query %d: expected %q, got %q", i, q, local.queries[i])
		}
	}
}

func TestRetrieveUnknownRoleSkipsRefinement(t *testing.T) {
	local := &fakeLocal{}
	g := testGateway(&fakeLLM{refined: "무시되어야 함"}, local)

	if _, err := g.Retrieve(context.Background(), "상장", "UNKNOWN_ROLE", 5); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(local.queries) != 1 || local.queries[0] != "상장" {
		t.Fatalf("unknown role must search with the raw topic, got %v", local.queries)
	}
}

func TestSearchWebExpandsShortSnippets(t *testing.T) {
	searcher := &fakeSearcher{results: [][]models.Result{{
		{Title: "안내", URL: "https://example.com/short", Snippet: "짧은 요약"},
	}}}
	fetcher := &fakeFetcher{text: longKorean}
	g := testGateway(&fakeLLM{refined: "상장"}, &fakeLocal{}, WithSearcher(searcher), WithFetcher(fetcher))

	docs, err := g.Retrieve(context.Background(), "상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one page fetch for the short snippet, got %d", fetcher.calls)
	}
	if len(docs) != 1 || docs[0].Content != longKorean {
		t.Fatalf("expected expanded snippet, got %+v", docs)
	}
}

func TestSearchWebDropsSnippetsThatStayShort(t *testing.T) {
	searcher := &fakeSearcher{results: [][]models.Result{{
		{Title: "안내", URL: "https://example.com/short", Snippet: "짧은 요약"},
	}}}
	fetcher := &fakeFetcher{err: errors.New("fetch blocked")}
	g := testGateway(&fakeLLM{refined: "상장"}, &fakeLocal{}, WithSearcher(searcher), WithFetcher(fetcher))

	docs, err := g.Retrieve(context.Background(), "상장", "IPO_AGENT", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if docs[0].Metadata.Source != DefaultSource {
		t.Fatalf("short snippets are noise; expected default fallback, got %+v", docs)
	}
}

func TestRetrieveContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := testGateway(&fakeLLM{refined: "상장"}, &fakeLocal{})
	if _, err := g.Retrieve(ctx, "상장", "IPO_AGENT", 5); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
