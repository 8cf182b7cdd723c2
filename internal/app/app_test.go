package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"ragguard/internal/config"
	"ragguard/internal/evidence"
	"ragguard/internal/llm"
	"ragguard/internal/rag"
	"ragguard/internal/rerank"
	"ragguard/internal/storage"
	"ragguard/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for _, key := range []string{"WEB_SEARCH_URL", "QDRANT_URL", "RERANK_BASE_URL", "FUSION_MODE", "TRUSTED_DOMAINS", "TRUSTED_DOMAINS_FILE"} {
		t.Setenv(key, "")
	}
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "kg.db"))
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestEngineOptions(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"FUSION_MODE":                   "wpm",
		"GATE_RELAXED_PASS_PROBABILITY": "0.6",
		"TRUSTED_DOMAINS":               "go.kr",
	})

	opts, err := EngineOptions(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, "wpm", opts.Fuser.Name())
	assert.Equal(t, cfg.Budget, opts.Budget)
	assert.Equal(t, 0.6, opts.Quality.RelaxedPass)
	assert.Equal(t, cfg.GatePass, opts.Quality.PassProbability)
	assert.Equal(t, cfg.DiversityLambda, opts.Diversity.Lambda)
	require.NotNil(t, opts.Citation.Allowlist)
	assert.True(t, opts.Citation.Allowlist.Allows("www.nts.go.kr"))
	assert.False(t, opts.Citation.Allowlist.Allows("example.com"))
}

func TestEngineOptions_UnknownFusionMode(t *testing.T) {
	cfg := loadConfig(t, nil)
	cfg.FusionMode = "borda"
	_, err := EngineOptions(cfg, nil)
	assert.Error(t, err)
}

func TestScorer(t *testing.T) {
	cfg := loadConfig(t, nil)
	assert.IsType(t, rerank.LexicalScorer{}, Scorer(cfg))

	cfg.RerankBaseURL = "http://localhost:8082"
	assert.IsType(t, &llm.CrossEncoderClient{}, Scorer(cfg))
}

func TestWebSearchConfig(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"WEB_SEARCH_URL":          "http://search.local/api",
		"WEB_SEARCH_RESULTS_PATH": "web.results",
		"WEB_SEARCH_SNIPPET_PATH": "description",
		"SNIPPET_MAX_RUNES":       "300",
	})
	wc := WebSearchConfig(cfg)
	assert.Equal(t, "http://search.local/api", wc.Endpoint)
	assert.Equal(t, "web.results", wc.ResultsPath)
	assert.Equal(t, "description", wc.SnippetPath)
	assert.Equal(t, "q", wc.QueryParam)
	assert.Equal(t, 300, wc.MaxSnippetRunes)
}

func TestNew_WebAndKnowledgeGraph(t *testing.T) {
	long := strings.Repeat("Residents file their income tax return with the National Tax Service every May. ", 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "Income tax filing", "snippet": long, "url": "https://www.nts.go.kr/income?utm_source=x"},
				{"title": "Tax calendar", "snippet": long, "url": "https://www.moef.go.kr/calendar"},
				{"title": "Blog post", "snippet": "unrelated", "url": "https://blog.example.com/post"},
			},
		})
	}))
	defer srv.Close()

	cfg := loadConfig(t, map[string]string{
		"WEB_SEARCH_URL":  srv.URL,
		"TRUSTED_DOMAINS": "go.kr",
	})

	ctx := context.Background()
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	require.NotNil(t, a.Graph)
	assert.Nil(t, a.Vectors)
	require.Contains(t, a.Checks, "knowledge_graph")
	assert.NoError(t, a.Checks["knowledge_graph"](ctx))

	seed := &storage.Seed{Entities: []storage.SeedEntity{{
		Name:        "National Tax Service",
		URL:         "https://www.nts.go.kr",
		Description: "Collects national taxes such as income tax.",
	}}}
	_, err = seed.Apply(ctx, a.Graph)
	require.NoError(t, err)

	res, err := a.Engine.RetrieveAndGate(ctx, rag.Request{Query: "national tax service income tax", TopK: 3}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, res.Evidence)
	assert.LessOrEqual(t, len(res.Evidence), 3)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, 2, res.Citation.TrustedSources)

	stages := map[evidence.SourceKind]evidence.StageResult{}
	for _, s := range res.Stages {
		stages[s.Stage] = s
	}
	require.Len(t, stages, 3)
	assert.Equal(t, 3, stages[evidence.SourceWeb].Count)
	assert.Equal(t, 1, stages[evidence.SourceKG].Count)
	assert.Equal(t, evidence.ReasonDisabled, stages[evidence.SourceVector].Reason)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ragguard_gate_decisions_total")
	assert.Contains(t, names, "ragguard_stage_latency_ms")
}

func TestNew_ValidationErrorSurfaces(t *testing.T) {
	cfg := loadConfig(t, nil)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Engine.RetrieveAndGate(context.Background(), rag.Request{Query: "  "}, nil)
	assert.ErrorIs(t, err, rag.ErrInvalidInput)
}

func TestVectorStoreHealthy(t *testing.T) {
	tests := []struct {
		name    string
		summary vectorstore.CollectionSummary
		wantErr string
	}{
		{"green", vectorstore.CollectionSummary{Name: "evidence", VectorSize: 768, Points: 10, Status: "Green"}, ""},
		{"yellow still serves", vectorstore.CollectionSummary{Name: "evidence", VectorSize: 768, Status: "Yellow"}, ""},
		{"red", vectorstore.CollectionSummary{Name: "evidence", VectorSize: 768, Status: "Red"}, "is Red"},
		{"size mismatch", vectorstore.CollectionSummary{Name: "evidence", VectorSize: 384, Status: "Green"}, "vector size 384"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VectorStoreHealthy(tt.summary, 768)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
