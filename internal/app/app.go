// Package app assembles the retrieval engine and its backends from
// configuration. Both the API server and ragctl start from here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ragguard/internal/config"
	"ragguard/internal/fusion"
	"ragguard/internal/gate"
	"ragguard/internal/limiter"
	"ragguard/internal/llm"
	"ragguard/internal/metrics"
	"ragguard/internal/observer"
	"ragguard/internal/rag"
	"ragguard/internal/rerank"
	"ragguard/internal/stage"
	"ragguard/internal/storage"
	"ragguard/internal/vectorstore"
	"ragguard/internal/websearch"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HealthCheck probes one backend.
type HealthCheck = func(ctx context.Context) error

// App is a wired engine plus the backends it was built over. Backends whose
// stage is disabled are nil.
type App struct {
	Config   *config.Config
	Engine   rag.Engine
	Registry *prometheus.Registry
	Metrics  *metrics.Observer

	DB       *sql.DB
	Graph    *storage.GraphRepo
	Vectors  *vectorstore.QdrantStore
	Embedder *llm.EmbeddingsClient

	// Checks are keyed by backend name.
	Checks map[string]HealthCheck

	closers []func() error
}

// New opens the configured backends and builds the engine. The web stage
// needs WEB_SEARCH_URL, the vector stage QDRANT_URL and the knowledge graph
// DB_PATH; a stage without its backend is left out of every plan.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Checks:   make(map[string]HealthCheck),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics, err = metrics.NewObserver(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var handlers []stage.Handler

	if cfg.WebSearchURL != "" {
		handlers = append(handlers, stage.NewWeb(websearch.NewClient(WebSearchConfig(cfg)), StageOptions(cfg.Web, cfg.WebHedge, a.Metrics)))
		slog.Info("Web stage enabled", "endpoint", cfg.WebSearchURL)
	}

	if cfg.QdrantURL != "" {
		if err := a.openVectors(ctx); err != nil {
			return nil, err
		}
		searcher := vectorstore.NewSearcher(a.Vectors, a.Embedder, cfg.QdrantCollection,
			vectorstore.WithMaxSnippetRunes(cfg.SnippetMax))
		handlers = append(handlers, stage.NewVector(searcher, StageOptions(cfg.Vector, 0, a.Metrics)))
	}

	if cfg.DBPath != "" {
		if err := a.openGraph(); err != nil {
			return nil, err
		}
		handlers = append(handlers, stage.NewKG(a.Graph, StageOptions(cfg.KG, 0, a.Metrics)))
	}

	opts, err := EngineOptions(cfg, a.Metrics)
	if err != nil {
		return nil, err
	}
	reranker := rerank.NewCrossEncoder(Scorer(cfg), limiter.New(cfg.Rerank.Concurrency), cfg.Rerank.Timeout, a.Metrics)

	a.Engine, err = rag.NewEngine(handlers, reranker, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	a.closers = append(a.closers, func() error { a.Engine.Close(); return nil })
	slog.Info("RAG engine initialized", "stages", len(handlers), "fusion", opts.Fuser.Name())
	return a, nil
}

func (a *App) openGraph() error {
	db, err := storage.New(a.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.Graph = storage.NewGraphRepo(db)
	a.Checks["knowledge_graph"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	slog.Info("Database initialized", "path", a.Config.DBPath)
	return nil
}

func (a *App) openVectors(ctx context.Context) error {
	cfg := a.Config
	store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	a.Vectors = store
	a.closers = append(a.closers, store.Close)

	// Ensure collection exists with correct vector size
	if err := store.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast)
	a.Embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	if _, err := a.Embedder.EmbedTexts(ctx, []string{"test"}); err != nil {
		return fmt.Errorf("failed to validate embedding client: %w", err)
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	collection, size := cfg.QdrantCollection, cfg.QdrantVectorSize
	a.Checks["vector_store"] = func(ctx context.Context) error {
		summary, err := store.Describe(ctx, collection)
		if err != nil {
			return err
		}
		return VectorStoreHealthy(summary, size)
	}
	return nil
}

// VectorStoreHealthy reports whether the collection can serve searches with
// vectors of the configured size.
func VectorStoreHealthy(summary vectorstore.CollectionSummary, vectorSize int) error {
	if !summary.Serving() {
		return fmt.Errorf("collection %s is %s", summary.Name, summary.Status)
	}
	if summary.VectorSize != vectorSize {
		return fmt.Errorf("collection %s has vector size %d, want %d", summary.Name, summary.VectorSize, vectorSize)
	}
	return nil
}

// Close releases the engine and every opened backend.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// EngineOptions maps configuration onto engine options.
func EngineOptions(cfg *config.Config, obs observer.Observer) (rag.Options, error) {
	fuser, err := fusion.New(cfg.FusionMode, cfg.RRFK, cfg.PowerMeanP, cfg.FusionWeights)
	if err != nil {
		return rag.Options{}, err
	}
	return rag.Options{
		DefaultTopK:   cfg.DefaultTopK,
		MaxTopK:       cfg.MaxTopK,
		CandidatePool: cfg.CandidatePool,
		RerankPool:    cfg.RerankPool,
		Budget:        cfg.Budget,
		Weights:       cfg.FusionWeights,
		Fuser:         fuser,
		Diversity:     rerank.Diversity{Lambda: cfg.DiversityLambda},
		Quality: gate.QualityConfig{
			K:               cfg.GateK,
			X0:              cfg.GateX0,
			PassProbability: cfg.GatePass,
			RelaxedPass:     cfg.GateRelaxedPass,
			FusedWeight:     cfg.GateFusedWeight,
			RerankWeight:    cfg.GateRerankWeight,
			AuthorityWeight: cfg.GateAuthorityWeight,
		},
		Citation: gate.CitationGate{
			Allowlist:        gate.NewSuffixAllowlist(cfg.TrustedDomains...),
			MinSources:       cfg.MinSources,
			MinEvidenceChars: cfg.MinEvidenceChars,
		},
		Workers:  cfg.Workers,
		Observer: obs,
	}, nil
}

// StageOptions maps one backend's limits onto stage options.
func StageOptions(s config.Stage, hedge time.Duration, obs observer.Observer) stage.Options {
	return stage.Options{
		Concurrency: s.Concurrency,
		Timeout:     s.Timeout,
		AcquireWait: s.AcquireWait,
		HedgeDelay:  hedge,
		Observer:    obs,
	}
}

// WebSearchConfig maps configuration onto the web search client.
func WebSearchConfig(cfg *config.Config) websearch.Config {
	wc := websearch.DefaultConfig()
	wc.Endpoint = cfg.WebSearchURL
	wc.APIKey = cfg.WebSearchAPIKey
	wc.ResultsPath = cfg.WebSearchResultsPath
	wc.TitlePath = cfg.WebSearchTitlePath
	wc.SnippetPath = cfg.WebSearchSnippetPath
	wc.URLPath = cfg.WebSearchURLPath
	wc.ScorePath = cfg.WebSearchScorePath
	wc.MaxSnippetRunes = cfg.SnippetMax
	return wc
}

// Scorer returns the HTTP cross-encoder when RERANK_BASE_URL is set and the
// in-process lexical scorer otherwise.
func Scorer(cfg *config.Config) rerank.Scorer {
	if cfg.RerankBaseURL == "" {
		return rerank.LexicalScorer{}
	}
	return llm.NewCrossEncoderClient(cfg.RerankBaseURL, cfg.RerankAPIKey, cfg.RerankModel)
}
