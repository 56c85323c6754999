package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
)

// ErrNotLoaded is returned when searching before a corpus has been ingested.
// The retrieval gateway maps it to "local retrieval unavailable" and proceeds
// with external sources only.
var ErrNotLoaded = errors.New("local index not loaded")

const rrfK = 60 // reciprocal-rank-fusion constant

// Document is one pre-chunked passage of the listing guidebook.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source"`
	Section string `json:"section"`
	Topic   string `json:"topic"`
}

// Hit is a scored search result.
type Hit struct {
	Document
	Score float64
	Rank  int
}

// Embedder produces dense vectors for text. Optional: without one the index
// degrades to BM25 only.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type docVec struct {
	id  string
	vec []float32
}

// Index is an in-process hybrid document index: bleve BM25 plus in-memory
// cosine vectors, fused with reciprocal-rank fusion.
type Index struct {
	mu       sync.RWMutex
	bleve    bleve.Index
	docs     map[string]Document
	vectors  []docVec
	embedder Embedder
	logger   *log.Logger
	loaded   bool
}

func New(embedder Embedder) *Index {
	return &Index{
		embedder: embedder,
		docs:     make(map[string]Document),
		logger:   log.New(log.Writer(), "[INDEX] ", log.LstdFlags),
	}
}

// Ready reports whether a corpus has been ingested.
func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.loaded
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// replace swaps in a freshly built corpus atomically.
func (ix *Index) replace(b bleve.Index, docs map[string]Document, vectors []docVec) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.bleve != nil {
		_ = ix.bleve.Close()
	}
	ix.bleve = b
	ix.docs = docs
	ix.vectors = vectors
	ix.loaded = true
}

// Search returns the k nearest documents for the query. Vector and BM25
// results are fused; if embedding fails the BM25 side still answers.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	ix.mu.RLock()
	if !ix.loaded {
		ix.mu.RUnlock()
		return nil, ErrNotLoaded
	}
	ix.mu.RUnlock()

	if k <= 0 || k > 50 {
		k = 10
	}

	bmHits, err := ix.bm25Search(query, k)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	var vecHits []Hit
	if ix.embedder != nil {
		qvecs, err := ix.embedder.CreateEmbedding(ctx, []string{query})
		if err != nil {
			ix.logger.Printf("query embedding failed, using bm25 only: %v", err)
		} else if len(qvecs) == 1 {
			vecHits = ix.vectorSearch(qvecs[0], k)
		}
	}

	return ix.fuseRRF(bmHits, vecHits, k), nil
}

func (ix *Index) bm25Search(q string, k int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := ix.bleve.Search(searchReq)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for i, hit := range res.Hits {
		doc, ok := ix.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{Document: doc, Score: hit.Score, Rank: i + 1})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (ix *Index) vectorSearch(q []float32, k int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	type scored struct {
		id    string
		score float64
	}
	var scoreds []scored
	for _, v := range ix.vectors {
		scoreds = append(scoreds, scored{id: v.id, score: cosine(q, v.vec)})
	}
	sort.Slice(scoreds, func(i, j int) bool { return scoreds[i].score > scoreds[j].score })
	var out []Hit
	for i, sc := range scoreds {
		doc, ok := ix.docs[sc.id]
		if !ok {
			continue
		}
		out = append(out, Hit{Document: doc, Score: sc.score, Rank: i + 1})
		if len(out) >= k {
			break
		}
	}
	return out
}

func (ix *Index) fuseRRF(a, b []Hit, k int) []Hit {
	type agg struct {
		item  Hit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := m[h.ID]
			if !ok {
				m[h.ID] = &agg{item: h}
				x = m[h.ID]
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)
	items := make([]*agg, 0, len(m))
	for _, v := range m {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score > items[j].score })
	out := make([]Hit, 0, len(items))
	for i, it := range items {
		if i >= k {
			break
		}
		h := it.item
		h.Score = it.score
		h.Rank = i + 1
		out = append(out, h)
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
