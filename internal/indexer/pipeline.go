// Package indexer loads a directory of markdown documents into the vector
// store that backs the vector retrieval stage.
package indexer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ragguard/internal/contextutil"
	"ragguard/internal/vectorstore"

	"github.com/google/uuid"
)

// defaultBatchSize is the number of chunks embedded per request.
const defaultBatchSize = 32

// pointNamespace derives stable point ids, so reindexing a file overwrites
// its previous points.
var pointNamespace = uuid.MustParse("5b0c3f4e-8f1d-4a52-9a36-2f8f0b6de7c1")

// Pipeline chunks, embeds and upserts markdown files.
type Pipeline struct {
	store      vectorstore.Store
	embedder   vectorstore.Embedder
	collection string
	chunker    *GoldmarkChunker
	batchSize  int
	baseURL    string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBaseURL sets the prefix joined with a file's relative path to form the
// url stored for its chunks. Without it no url is stored.
func WithBaseURL(base string) Option {
	return func(p *Pipeline) { p.baseURL = strings.TrimSuffix(base, "/") }
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(store vectorstore.Store, embedder vectorstore.Embedder, collection string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		embedder:   embedder,
		collection: collection,
		chunker:    NewGoldmarkChunker(),
		batchSize:  defaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexDir indexes every markdown file under root. A file that fails is
// logged and counted; the run continues with the next one.
func (p *Pipeline) IndexDir(ctx context.Context, root string) (Stats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := Scan(ctx, root)
	if err != nil {
		return Stats{}, err
	}
	logger.InfoContext(ctx, "starting indexing", "root", root, "total_files", len(files))

	var stats Stats
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Files++

		n, err := p.IndexFile(ctx, f)
		if err != nil {
			stats.Failed++
			logger.ErrorContext(ctx, "failed to index file", "rel_path", f.RelPath, "error", err)
			continue
		}
		if n == 0 {
			stats.Empty++
		}
		stats.Chunks += n
		stats.Embedded += n
	}

	logger.InfoContext(ctx, "indexing completed",
		"files", stats.Files,
		"chunks", stats.Chunks,
		"failed", stats.Failed,
	)
	if stats.Failed > 0 {
		return stats, fmt.Errorf("indexing completed with %d errors", stats.Failed)
	}
	return stats, nil
}

// IndexFile chunks one file and upserts its chunks. It returns the number
// of chunks stored.
func (p *Pipeline) IndexFile(ctx context.Context, f File) (int, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read file %s: %w", f.AbsPath, err)
	}

	title, chunks := p.chunker.ChunkMarkdown(content, f.RelPath)
	if len(chunks) == 0 {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "no chunks generated", "rel_path", f.RelPath)
		return 0, nil
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		batch := chunks[start:min(start+p.batchSize, len(chunks))]
		if err := p.upsertBatch(ctx, f, title, batch); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

func (p *Pipeline) upsertBatch(ctx context.Context, f File, title string, batch []Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	embeddings, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
	}

	points := make([]vectorstore.Point, len(batch))
	for i, c := range batch {
		docID := f.RelPath + "#" + strconv.Itoa(c.Index)
		meta := map[string]any{
			vectorstore.PayloadDocID: docID,
			vectorstore.PayloadTitle: chunkTitle(title, c.Heading),
			vectorstore.PayloadText:  c.Text,
		}
		if p.baseURL != "" {
			meta[vectorstore.PayloadURL] = p.baseURL + "/" + f.RelPath
		}
		points[i] = vectorstore.Point{
			ID:   uuid.NewSHA1(pointNamespace, []byte(docID)).String(),
			Vec:  embeddings[i],
			Meta: meta,
		}
	}

	if err := p.store.Upsert(ctx, p.collection, points); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func chunkTitle(title, heading string) string {
	if heading == "" || heading == title {
		return title
	}
	return title + " > " + heading
}
