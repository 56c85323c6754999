package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve"
)

// LoadCorpus ingests a JSONL corpus file: one Document per line. Documents
// missing an ID get a positional one. Embeddings are computed in batches when
// an embedder is configured; embedding failure downgrades to BM25 only rather
// than failing the load.
func (ix *Index) LoadCorpus(ctx context.Context, path string, embedBatch int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()

	if embedBatch <= 0 {
		embedBatch = 16
	}

	mapping := bleve.NewIndexMapping()
	b, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return fmt.Errorf("creating bleve index: %w", err)
	}

	docs := make(map[string]Document)
	var order []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			ix.logger.Printf("skipping corpus line %d: %v", lineNo, err)
			continue
		}
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("doc-%d", lineNo)
		}
		if err := b.Index(doc.ID, doc); err != nil {
			_ = b.Close()
			return fmt.Errorf("indexing document %s: %w", doc.ID, err)
		}
		docs[doc.ID] = doc
		order = append(order, doc.ID)
	}
	if err := scanner.Err(); err != nil {
		_ = b.Close()
		return fmt.Errorf("reading corpus: %w", err)
	}
	if len(docs) == 0 {
		_ = b.Close()
		return fmt.Errorf("corpus %s contains no documents", path)
	}

	vectors := ix.embedAll(ctx, docs, order, embedBatch)

	ix.replace(b, docs, vectors)
	ix.logger.Printf("corpus loaded: %d documents, %d vectors", len(docs), len(vectors))
	return nil
}

func (ix *Index) embedAll(ctx context.Context, docs map[string]Document, order []string, batch int) []docVec {
	if ix.embedder == nil {
		return nil
	}
	var vectors []docVec
	for start := 0; start < len(order); start += batch {
		end := start + batch
		if end > len(order) {
			end = len(order)
		}
		ids := order[start:end]
		texts := make([]string, len(ids))
		for i, id := range ids {
			texts[i] = docs[id].Content
		}
		vecs, err := ix.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			ix.logger.Printf("embedding batch %d-%d failed, continuing without vectors: %v", start, end, err)
			return nil
		}
		for i, v := range vecs {
			if i < len(ids) {
				vectors = append(vectors, docVec{id: ids[i], vec: v})
			}
		}
	}
	return vectors
}
