package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ragguard/internal/evidence"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTrustedDomains are the suffixes trusted when neither TRUSTED_DOMAINS
// nor TRUSTED_DOMAINS_FILE is set.
var DefaultTrustedDomains = []string{"gov.kr", "go.kr", "ac.kr", "who.int", "nature.com"}

// Stage bounds one retrieval backend.
type Stage struct {
	Concurrency int
	Timeout     time.Duration
	AcquireWait time.Duration
}

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	// Request pipeline
	Budget        time.Duration
	DefaultTopK   int
	MaxTopK       int
	CandidatePool int
	RerankPool    int
	Workers       int

	// Fusion and diversity
	FusionMode      string
	FusionWeights   evidence.Weights
	RRFK            float64
	PowerMeanP      float64
	DiversityLambda float64

	// Quality gate
	GateK               float64
	GateX0              float64
	GatePass            float64
	GateRelaxedPass     float64
	GateFusedWeight     float64
	GateRerankWeight    float64
	GateAuthorityWeight float64

	// Citation gate
	MinSources       int
	MinEvidenceChars int
	TrustedDomains   []string

	// Stage limits
	Web        Stage
	WebHedge   time.Duration
	Vector     Stage
	KG         Stage
	Rerank     Stage
	SnippetMax int

	// Web search backend; empty URL disables the web stage.
	WebSearchURL         string
	WebSearchAPIKey      string
	WebSearchResultsPath string
	WebSearchTitlePath   string
	WebSearchSnippetPath string
	WebSearchURLPath     string
	WebSearchScorePath   string

	// Vector backend; empty QDRANT_URL disables the vector stage.
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	QdrantURL          string
	QdrantAPIKey       string
	QdrantCollection   string
	QdrantVectorSize   int

	// Knowledge graph; empty DB_PATH disables the KG stage.
	DBPath string

	// Cross-encoder; empty URL selects the in-process lexical scorer.
	RerankBaseURL string
	RerankModel   string
	RerankAPIKey  string

	// Warnings lists values that were rejected in favour of the default.
	Warnings []string
}

// Load reads configuration from environment variables and returns a Config struct.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
// A malformed value never fails the load: the default is used and a warning
// recorded. Only a missing QDRANT_VECTOR_SIZE for an enabled vector stage, an
// unreadable domains file or an uncreatable data directory are errors.
func Load() (*Config, error) {
	loadDotEnv()

	p := &parser{}
	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		LogLevel:  p.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat: p.oneOf("LOG_FORMAT", "text", "text", "json"),

		Budget:        p.duration("RETRIEVAL_BUDGET_MS", 2500*time.Millisecond),
		DefaultTopK:   p.positiveInt("DEFAULT_TOP_K", 5),
		MaxTopK:       p.positiveInt("MAX_TOP_K", 20),
		CandidatePool: p.positiveInt("CANDIDATE_POOL", 30),
		RerankPool:    p.positiveInt("RERANK_POOL", 10),
		Workers:       p.positiveInt("FANOUT_WORKERS", 64),

		FusionMode:      p.oneOf("FUSION_MODE", "rrf", "rrf", "wpm"),
		FusionWeights:   p.weights("FUSION_WEIGHTS", evidence.DefaultWeights()),
		RRFK:            p.float("RRF_K", 60, 0, 1e6),
		PowerMeanP:      p.float("POWER_MEAN_P", 1, -100, 100),
		DiversityLambda: p.float("DPP_LAMBDA", 0.7, 0, 1),

		GateK:               p.float("GATE_K", 8, 0, 1e3),
		GateX0:              p.float("GATE_X0", 0.72, -1, 2),
		GatePass:            p.float("GATE_PASS_PROBABILITY", 0.90, 0, 1),
		GateRelaxedPass:     p.float("GATE_RELAXED_PASS_PROBABILITY", 0.5, 0, 1),
		GateFusedWeight:     p.float("GATE_FUSED_WEIGHT", 0.5, 0, 1),
		GateRerankWeight:    p.float("GATE_RERANK_WEIGHT", 0.35, 0, 1),
		GateAuthorityWeight: p.float("GATE_AUTHORITY_WEIGHT", 0.15, 0, 1),

		MinSources:       p.positiveInt("CITATION_MIN_SOURCES", 2),
		MinEvidenceChars: p.positiveInt("CITATION_MIN_CHARS", 400),

		Web: Stage{
			Concurrency: p.positiveInt("WEB_CONCURRENCY", 8),
			Timeout:     p.duration("WEB_TIMEOUT_MS", 1200*time.Millisecond),
			AcquireWait: p.duration("WEB_ACQUIRE_WAIT_MS", 50*time.Millisecond),
		},
		WebHedge: p.duration("WEB_HEDGE_DELAY_MS", 300*time.Millisecond),
		Vector: Stage{
			Concurrency: p.positiveInt("VECTOR_CONCURRENCY", 8),
			Timeout:     p.duration("VECTOR_TIMEOUT_MS", 800*time.Millisecond),
			AcquireWait: p.duration("VECTOR_ACQUIRE_WAIT_MS", 50*time.Millisecond),
		},
		KG: Stage{
			Concurrency: p.positiveInt("KG_CONCURRENCY", 4),
			Timeout:     p.duration("KG_TIMEOUT_MS", 600*time.Millisecond),
			AcquireWait: p.duration("KG_ACQUIRE_WAIT_MS", 0),
		},
		Rerank: Stage{
			Concurrency: p.positiveInt("RERANK_CONCURRENCY", 4),
			Timeout:     p.duration("RERANK_TIMEOUT_MS", 800*time.Millisecond),
		},
		SnippetMax: p.positiveInt("SNIPPET_MAX_RUNES", 1200),

		WebSearchURL:         getEnv("WEB_SEARCH_URL", ""),
		WebSearchAPIKey:      getEnv("WEB_SEARCH_API_KEY", ""),
		WebSearchResultsPath: getEnv("WEB_SEARCH_RESULTS_PATH", "results"),
		WebSearchTitlePath:   getEnv("WEB_SEARCH_TITLE_PATH", "title"),
		WebSearchSnippetPath: getEnv("WEB_SEARCH_SNIPPET_PATH", "snippet"),
		WebSearchURLPath:     getEnv("WEB_SEARCH_URL_PATH", "url"),
		WebSearchScorePath:   getEnv("WEB_SEARCH_SCORE_PATH", ""),

		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
		QdrantURL:          getEnv("QDRANT_URL", ""),
		QdrantAPIKey:       getEnv("QDRANT_API_KEY", ""),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "evidence"),

		DBPath: getEnv("DB_PATH", "./data/ragguard.db"),

		RerankBaseURL: getEnv("RERANK_BASE_URL", ""),
		RerankModel:   getEnv("RERANK_MODEL", ""),
		RerankAPIKey:  getEnv("RERANK_API_KEY", ""),
	}

	if cfg.QdrantURL != "" {
		// Must match the output size of the embeddings model; if it changes the
		// Qdrant collection must be recreated.
		vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
		if vectorSizeStr == "" {
			return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required when QDRANT_URL is set")
		}
		vectorSize, err := strconv.Atoi(vectorSizeStr)
		if err != nil {
			return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
		}
		if vectorSize <= 0 {
			return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
		}
		cfg.QdrantVectorSize = vectorSize
	}

	domains, err := trustedDomains()
	if err != nil {
		return nil, err
	}
	cfg.TrustedDomains = domains

	if cfg.MaxTopK < cfg.DefaultTopK {
		p.warn("MAX_TOP_K", strconv.Itoa(cfg.MaxTopK), "smaller than DEFAULT_TOP_K")
		cfg.MaxTopK = cfg.DefaultTopK
	}

	if cfg.DBPath != "" {
		dataDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	cfg.Warnings = p.warnings
	return cfg, nil
}

// loadDotEnv loads .env from the current directory, then from the nearest
// parent that has one.
func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ { // Limit search depth
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// domainsFile is the layout of TRUSTED_DOMAINS_FILE.
type domainsFile struct {
	TrustedDomains []string `yaml:"trusted_domains"`
}

// trustedDomains merges TRUSTED_DOMAINS with the suffixes listed in
// TRUSTED_DOMAINS_FILE. With neither set, DefaultTrustedDomains apply.
func trustedDomains() ([]string, error) {
	var out []string
	for _, d := range strings.Split(getEnv("TRUSTED_DOMAINS", ""), ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}

	if path := getEnv("TRUSTED_DOMAINS_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read TRUSTED_DOMAINS_FILE: %w", err)
		}
		var f domainsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("failed to parse TRUSTED_DOMAINS_FILE: %w", err)
		}
		out = append(out, f.TrustedDomains...)
	}

	if len(out) == 0 {
		return append([]string(nil), DefaultTrustedDomains...), nil
	}
	return out, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser reads typed values, falling back to the default on bad input.
type parser struct {
	warnings []string
}

func (p *parser) warn(key, value, why string) {
	p.warnings = append(p.warnings, fmt.Sprintf("%s=%q ignored: %s", key, value, why))
}

func (p *parser) positiveInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		p.warn(key, raw, "want a positive integer")
		return def
	}
	return v
}

func (p *parser) float(key string, def, lo, hi float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || v < lo || v > hi {
		p.warn(key, raw, fmt.Sprintf("want a number in [%g, %g]", lo, hi))
		return def
	}
	return v
}

// duration accepts whole milliseconds ("250") or a Go duration ("1.5s").
func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	p.warn(key, raw, "want milliseconds or a duration")
	return def
}

func (p *parser) oneOf(key, def string, allowed ...string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	p.warn(key, raw, "want one of "+strings.Join(allowed, ", "))
	return def
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		p.warn(key, raw, "want debug, info, warn or error")
		return def
	}
	return l
}

// weights parses "WEB=0.5,VECTOR=0.3,KG=0.2". Sources left out weigh 0.
func (p *parser) weights(key string, def evidence.Weights) evidence.Weights {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	w := evidence.Weights{}
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			p.warn(key, raw, "want SOURCE=weight pairs")
			return def
		}
		kind, err := evidence.ParseSourceKind(name)
		if err != nil || !kind.IsRetrieval() {
			p.warn(key, raw, fmt.Sprintf("unknown source %q", strings.TrimSpace(name)))
			return def
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			p.warn(key, raw, fmt.Sprintf("bad weight for %s", kind))
			return def
		}
		w[kind] = f
	}
	if !w.Valid(evidence.RetrievalSources) {
		p.warn(key, raw, "weights must lie in [0,1] with at least one positive")
		return def
	}
	return w
}
