package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_store.go -package=mocks ragguard/internal/vectorstore Store,Embedder

import "context"

// Payload keys written by the indexer and read back by the searcher.
const (
	PayloadDocID = "doc_id"
	PayloadTitle = "title"
	PayloadText  = "text"
	PayloadURL   = "url"
)

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult is one nearest neighbour, with its stored vector when the
// store returns it.
type SearchResult struct {
	PointID string
	Score   float32
	Vector  []float32
	Meta    map[string]any
}

// Store defines the vector storage operations the retrieval stage needs.
type Store interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search with optional exact-match filters.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
