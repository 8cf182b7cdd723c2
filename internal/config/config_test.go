package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ragguard/internal/evidence"
)

var envVars = []string{
	"API_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"RETRIEVAL_BUDGET_MS", "DEFAULT_TOP_K", "MAX_TOP_K", "CANDIDATE_POOL", "RERANK_POOL", "FANOUT_WORKERS",
	"FUSION_MODE", "FUSION_WEIGHTS", "RRF_K", "POWER_MEAN_P", "DPP_LAMBDA",
	"GATE_K", "GATE_X0", "GATE_PASS_PROBABILITY", "GATE_RELAXED_PASS_PROBABILITY",
	"GATE_FUSED_WEIGHT", "GATE_RERANK_WEIGHT", "GATE_AUTHORITY_WEIGHT",
	"CITATION_MIN_SOURCES", "CITATION_MIN_CHARS", "TRUSTED_DOMAINS", "TRUSTED_DOMAINS_FILE",
	"WEB_CONCURRENCY", "WEB_TIMEOUT_MS", "WEB_ACQUIRE_WAIT_MS", "WEB_HEDGE_DELAY_MS",
	"VECTOR_CONCURRENCY", "VECTOR_TIMEOUT_MS", "VECTOR_ACQUIRE_WAIT_MS",
	"KG_CONCURRENCY", "KG_TIMEOUT_MS", "KG_ACQUIRE_WAIT_MS",
	"RERANK_CONCURRENCY", "RERANK_TIMEOUT_MS", "SNIPPET_MAX_RUNES",
	"WEB_SEARCH_URL", "WEB_SEARCH_API_KEY", "WEB_SEARCH_RESULTS_PATH", "WEB_SEARCH_TITLE_PATH",
	"WEB_SEARCH_SNIPPET_PATH", "WEB_SEARCH_URL_PATH", "WEB_SEARCH_SCORE_PATH",
	"EMBEDDING_BASE_URL", "EMBEDDING_MODEL_NAME", "EMBEDDING_API_KEY",
	"QDRANT_URL", "QDRANT_API_KEY", "QDRANT_COLLECTION", "QDRANT_VECTOR_SIZE",
	"DB_PATH", "RERANK_BASE_URL", "RERANK_MODEL", "RERANK_API_KEY",
}

// isolateEnv blanks every variable Load reads and points DB_PATH into a
// temp dir. Blank values read as unset.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "kg.db"))
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "9000" || cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "text" {
		t.Errorf("server defaults = %q %v %q", cfg.APIPort, cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Budget != 2500*time.Millisecond || cfg.DefaultTopK != 5 || cfg.MaxTopK != 20 {
		t.Errorf("pipeline defaults = %v %d %d", cfg.Budget, cfg.DefaultTopK, cfg.MaxTopK)
	}
	if cfg.FusionMode != "rrf" || cfg.RRFK != 60 || cfg.DiversityLambda != 0.7 {
		t.Errorf("fusion defaults = %q %v %v", cfg.FusionMode, cfg.RRFK, cfg.DiversityLambda)
	}
	if cfg.FusionWeights[evidence.SourceWeb] != 0.5 || cfg.FusionWeights[evidence.SourceKG] != 0.2 {
		t.Errorf("FusionWeights = %v", cfg.FusionWeights)
	}
	if cfg.GateK != 8 || cfg.GateX0 != 0.72 || cfg.GatePass != 0.90 || cfg.GateRelaxedPass != 0.5 {
		t.Errorf("gate defaults = %v %v %v %v", cfg.GateK, cfg.GateX0, cfg.GatePass, cfg.GateRelaxedPass)
	}
	if cfg.MinSources != 2 || cfg.MinEvidenceChars != 400 {
		t.Errorf("citation defaults = %d %d", cfg.MinSources, cfg.MinEvidenceChars)
	}
	if cfg.KG.AcquireWait != 0 || cfg.Web.AcquireWait != 50*time.Millisecond || cfg.WebHedge != 300*time.Millisecond {
		t.Errorf("stage defaults = %+v %+v %v", cfg.KG, cfg.Web, cfg.WebHedge)
	}
	if len(cfg.TrustedDomains) != len(DefaultTrustedDomains) {
		t.Errorf("TrustedDomains = %v", cfg.TrustedDomains)
	}
	if cfg.QdrantURL != "" || cfg.QdrantVectorSize != 0 || cfg.WebSearchURL != "" {
		t.Errorf("optional backends should be disabled by default")
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Warnings = %v", cfg.Warnings)
	}
}

func TestLoad_Overrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("RETRIEVAL_BUDGET_MS", "1500")
	t.Setenv("WEB_TIMEOUT_MS", "2s")
	t.Setenv("FUSION_MODE", "wpm")
	t.Setenv("FUSION_WEIGHTS", "web=0.6, vector=0.4")
	t.Setenv("GATE_PASS_PROBABILITY", "0.8")
	t.Setenv("TRUSTED_DOMAINS", "go.kr, ac.kr ,")
	t.Setenv("QDRANT_URL", "http://localhost:6333")
	t.Setenv("QDRANT_VECTOR_SIZE", "768")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
		t.Errorf("logging = %v %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Budget != 1500*time.Millisecond || cfg.Web.Timeout != 2*time.Second {
		t.Errorf("durations = %v %v", cfg.Budget, cfg.Web.Timeout)
	}
	if cfg.FusionMode != "wpm" {
		t.Errorf("FusionMode = %q", cfg.FusionMode)
	}
	want := evidence.Weights{evidence.SourceWeb: 0.6, evidence.SourceVector: 0.4}
	if len(cfg.FusionWeights) != 2 || cfg.FusionWeights[evidence.SourceWeb] != want[evidence.SourceWeb] || cfg.FusionWeights[evidence.SourceVector] != want[evidence.SourceVector] {
		t.Errorf("FusionWeights = %v, want %v", cfg.FusionWeights, want)
	}
	if cfg.GatePass != 0.8 {
		t.Errorf("GatePass = %v", cfg.GatePass)
	}
	if len(cfg.TrustedDomains) != 2 || cfg.TrustedDomains[1] != "ac.kr" {
		t.Errorf("TrustedDomains = %q", cfg.TrustedDomains)
	}
	if cfg.QdrantVectorSize != 768 {
		t.Errorf("QdrantVectorSize = %d", cfg.QdrantVectorSize)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(*Config) bool
	}{
		{"DEFAULT_TOP_K", "-3", func(c *Config) bool { return c.DefaultTopK == 5 }},
		{"RETRIEVAL_BUDGET_MS", "soon", func(c *Config) bool { return c.Budget == 2500*time.Millisecond }},
		{"DPP_LAMBDA", "1.5", func(c *Config) bool { return c.DiversityLambda == 0.7 }},
		{"GATE_PASS_PROBABILITY", "NaN", func(c *Config) bool { return c.GatePass == 0.90 }},
		{"FUSION_MODE", "borda", func(c *Config) bool { return c.FusionMode == "rrf" }},
		{"FUSION_WEIGHTS", "WEB=2", func(c *Config) bool { return c.FusionWeights[evidence.SourceWeb] == 0.5 }},
		{"FUSION_WEIGHTS", "RERANK=0.5", func(c *Config) bool { return c.FusionWeights[evidence.SourceWeb] == 0.5 }},
		{"FUSION_WEIGHTS", "WEB", func(c *Config) bool { return len(c.FusionWeights) == 3 }},
		{"LOG_LEVEL", "loud", func(c *Config) bool { return c.LogLevel == slog.LevelInfo }},
		{"MAX_TOP_K", "2", func(c *Config) bool { return c.MaxTopK == 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("Load() did not fall back to the default for %s=%q: %+v", tt.key, tt.value, cfg)
			}
			if len(cfg.Warnings) != 1 {
				t.Errorf("Warnings = %v, want one", cfg.Warnings)
			}
		})
	}
}

func TestLoad_QdrantVectorSize(t *testing.T) {
	tests := []struct {
		name    string
		size    string
		wantErr bool
	}{
		{"missing", "", true},
		{"not a number", "big", true},
		{"zero", "0", true},
		{"valid", "1024", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv("QDRANT_URL", "http://localhost:6333")
			t.Setenv("QDRANT_VECTOR_SIZE", tt.size)

			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_TrustedDomainsFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "domains.yaml")
	if err := os.WriteFile(path, []byte("trusted_domains:\n  - who.int\n  - nature.com\n"), 0o644); err != nil {
		t.Fatalf("write domains file: %v", err)
	}
	t.Setenv("TRUSTED_DOMAINS", "go.kr")
	t.Setenv("TRUSTED_DOMAINS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"go.kr", "who.int", "nature.com"}
	if len(cfg.TrustedDomains) != len(want) {
		t.Fatalf("TrustedDomains = %q, want %q", cfg.TrustedDomains, want)
	}
	for i := range want {
		if cfg.TrustedDomains[i] != want[i] {
			t.Errorf("TrustedDomains[%d] = %q, want %q", i, cfg.TrustedDomains[i], want[i])
		}
	}
}

func TestLoad_TrustedDomainsFileErrors(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRUSTED_DOMAINS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Load() with a missing domains file should fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("trusted_domains: [unclosed"), 0o644); err != nil {
		t.Fatalf("write domains file: %v", err)
	}
	t.Setenv("TRUSTED_DOMAINS_FILE", bad)
	if _, err := Load(); err == nil {
		t.Error("Load() with a malformed domains file should fail")
	}
}

func TestLoad_CreatesDataDirectory(t *testing.T) {
	isolateEnv(t)
	dbPath := filepath.Join(t.TempDir(), "test", "db.db")
	t.Setenv("DB_PATH", dbPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Errorf("Load() should create data directory: %v", err)
	}
	if cfg.DBPath != dbPath {
		t.Errorf("Load() DBPath = %v, want %v", cfg.DBPath, dbPath)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue string
		want         string
	}{
		{name: "env var set", value: "set-value", defaultValue: "default", want: "set-value"},
		{name: "empty env var uses default", value: "", defaultValue: "default", want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_VAR", tt.value)
			got := getEnv("TEST_ENV_VAR", tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", "TEST_ENV_VAR", tt.defaultValue, got, tt.want)
			}
		})
	}
}
