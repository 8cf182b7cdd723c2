package vectorstore

import (
	"context"
	"fmt"

	"ragguard/internal/evidence"
	"ragguard/internal/textutil"
)

// Searcher is the vector retrieval backend: it embeds the query and maps the
// nearest stored chunks to evidence.
type Searcher struct {
	store      Store
	embedder   Embedder
	collection string
	filters    map[string]any
	maxRunes   int
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithFilters restricts every search to points matching filters.
func WithFilters(filters map[string]any) SearcherOption {
	return func(s *Searcher) { s.filters = filters }
}

// WithMaxSnippetRunes truncates snippets longer than n runes.
func WithMaxSnippetRunes(n int) SearcherOption {
	return func(s *Searcher) { s.maxRunes = n }
}

// NewSearcher creates a vector searcher over collection.
func NewSearcher(store Store, embedder Embedder, collection string, opts ...SearcherOption) *Searcher {
	s := &Searcher{store: store, embedder: embedder, collection: collection}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns up to topK slices ordered by similarity. Stored text is
// markdown; it is flattened to plain text for the snippet.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error) {
	if topK <= 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}

	hits, err := s.store.Search(ctx, s.collection, vectors[0], topK, s.filters)
	if err != nil {
		return nil, err
	}

	out := make([]evidence.ContextSlice, 0, len(hits))
	for _, hit := range hits {
		id := metaString(hit.Meta, PayloadDocID)
		if id == "" {
			id = hit.PointID
		}
		heading, text := textutil.MarkdownToText([]byte(metaString(hit.Meta, PayloadText)))
		title := metaString(hit.Meta, PayloadTitle)
		if title == "" {
			title = heading
		}
		out = append(out, evidence.ContextSlice{
			ID:        id,
			Source:    evidence.SourceVector,
			Origin:    evidence.SourceVector,
			Title:     title,
			Snippet:   textutil.Truncate(text, s.maxRunes),
			URL:       metaString(hit.Meta, PayloadURL),
			Score:     float64(hit.Score),
			Embedding: hit.Vector,
		})
	}
	return evidence.Renumber(out), nil
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
