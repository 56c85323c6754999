package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		// Deterministic toy embedding so cosine ranking is predictable.
		vec := make([]float32, 8)
		for _, r := range text {
			vec[int(r)%8]++
		}
		out[i] = vec
	}
	return out, nil
}

func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	return path
}

func TestSearchBeforeLoadReturnsNotLoaded(t *testing.T) {
	ix := New(nil)
	if _, err := ix.Search(context.Background(), "anything", 5); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestLoadCorpusAndSearch(t *testing.T) {
	path := writeCorpus(t,
		`{"id":"kosdaq-1","content":"KOSDAQ listing requires equity of at least 3 billion won","source":"guide.pdf","section":"kosdaq","topic":"requirements"}`,
		`{"id":"kospi-1","content":"KOSPI listing targets large corporations with stable profit","source":"guide.pdf","section":"kospi","topic":"requirements"}`,
		`{"id":"konex-1","content":"KONEX is the market for small ventures and startups","source":"guide.pdf","section":"konex","topic":"markets"}`,
	)

	ix := New(nil)
	if err := ix.LoadCorpus(context.Background(), path, 2); err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if !ix.Ready() || ix.Len() != 3 {
		t.Fatalf("expected 3 documents loaded, got ready=%v len=%d", ix.Ready(), ix.Len())
	}

	hits, err := ix.Search(context.Background(), "KOSDAQ equity", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits for indexed content")
	}
	if hits[0].ID != "kosdaq-1" {
		t.Fatalf("expected kosdaq-1 first, got %q", hits[0].ID)
	}
	if hits[0].Source != "guide.pdf" || hits[0].Section != "kosdaq" {
		t.Fatalf("hit lost document metadata: %+v", hits[0].Document)
	}
}

func TestLoadCorpusSkipsBadLines(t *testing.T) {
	path := writeCorpus(t,
		`{"id":"good","content":"valid document about listing procedure"}`,
		`{this is not json`,
		``,
		`{"id":"empty","content":"   "}`,
	)

	ix := New(nil)
	if err := ix.LoadCorpus(context.Background(), path, 2); err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("expected only the valid line indexed, got %d", ix.Len())
	}
}

func TestLoadCorpusEmptyFileFails(t *testing.T) {
	path := writeCorpus(t, ``)
	ix := New(nil)
	if err := ix.LoadCorpus(context.Background(), path, 2); err == nil {
		t.Fatal("expected error for corpus without documents")
	}
	if ix.Ready() {
		t.Fatal("failed load must not mark the index ready")
	}
}

func TestSearchFallsBackWhenEmbeddingFails(t *testing.T) {
	path := writeCorpus(t,
		`{"id":"a","content":"listing examination takes forty five business days"}`,
	)

	embedder := &fakeEmbedder{}
	ix := New(embedder)
	if err := ix.LoadCorpus(context.Background(), path, 2); err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}

	// Query-time embedding failure downgrades to BM25 only.
	embedder.err = errors.New("embedding backend down")
	hits, err := ix.Search(context.Background(), "listing examination", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Fatalf("expected bm25 hit despite embedding failure, got %+v", hits)
	}
}

func TestHybridSearchFusesBothSides(t *testing.T) {
	path := writeCorpus(t,
		`{"id":"a","content":"preliminary listing examination application"}`,
		`{"id":"b","content":"bond market listing for debt securities"}`,
	)

	ix := New(&fakeEmbedder{})
	if err := ix.LoadCorpus(context.Background(), path, 2); err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}

	hits, err := ix.Search(context.Background(), "preliminary listing examination", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != "a" {
		t.Fatalf("expected document a ranked first, got %+v", hits)
	}
	for i, h := range hits {
		if h.Rank != i+1 {
			t.Fatalf("ranks must be contiguous after fusion: %+v", hits)
		}
	}
}

func TestLoadCorpusReplacesPreviousCorpus(t *testing.T) {
	first := writeCorpus(t, `{"id":"old","content":"old corpus document about nothing"}`)
	second := writeCorpus(t, `{"id":"new","content":"new corpus document about listing"}`)

	ix := New(nil)
	if err := ix.LoadCorpus(context.Background(), first, 2); err != nil {
		t.Fatalf("LoadCorpus first: %v", err)
	}
	if err := ix.LoadCorpus(context.Background(), second, 2); err != nil {
		t.Fatalf("LoadCorpus second: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("reload must replace, not merge: %d docs", ix.Len())
	}
	hits, err := ix.Search(context.Background(), "listing", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "new" {
		t.Fatalf("expected only the new corpus searchable, got %+v", hits)
	}
}
