package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"ragguard/internal/app"
	"ragguard/internal/budget"
	"ragguard/internal/config"
	"ragguard/internal/indexer"
	"ragguard/internal/llm"
	"ragguard/internal/rag"
	"ragguard/internal/storage"
	"ragguard/internal/vectorstore"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "ragctl",
		Usage:     "Operate the ragguard retrieval pipeline",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "query",
				Usage:     "Run one retrieval and print the gate decision as JSON",
				ArgsUsage: "<question>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of evidence slices (0 uses DEFAULT_TOP_K)",
					},
					&cli.DurationFlag{
						Name:  "budget",
						Usage: "Time budget for the request (0 uses RETRIEVAL_BUDGET_MS)",
					},
					&cli.BoolFlag{Name: "skip-web", Usage: "Leave the web stage out of the plan"},
					&cli.BoolFlag{Name: "skip-vector", Usage: "Leave the vector stage out of the plan"},
					&cli.BoolFlag{Name: "skip-kg", Usage: "Leave the knowledge-graph stage out of the plan"},
					&cli.BoolFlag{Name: "relaxed", Usage: "Use the relaxed gate threshold"},
					&cli.BoolFlag{Name: "require-approval", Usage: "Exit non-zero when the gate rejects"},
				},
			},
			{
				Name:  "kg",
				Usage: "Manage the knowledge graph",
				Subcommands: []*cli.Command{
					{
						Name:      "seed",
						Usage:     "Load entities and relations from a YAML file",
						ArgsUsage: "<file.yaml>",
						Action:    seedCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "db",
								Usage: "Path to the SQLite database (defaults to DB_PATH)",
							},
						},
					},
				},
			},
			{
				Name:      "index",
				Usage:     "Embed a directory of markdown files into the Qdrant collection",
				ArgsUsage: "<dir>",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "base-url",
						Usage: "URL prefix joined with each file's relative path",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks embedded per request",
						Value: 32,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.String("log-level")))); err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, w := range cfg.Warnings {
		slog.Warn("Configuration value ignored", "detail", w)
	}
	return cfg, nil
}

func queryCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var b *budget.Budget
	if d := c.Duration("budget"); d > 0 {
		b = budget.New(d)
	}

	res, err := a.Engine.RetrieveAndGate(ctx, rag.Request{
		Query: question,
		TopK:  c.Int("top-k"),
		Flags: rag.Flags{
			SkipWeb:     c.Bool("skip-web"),
			SkipVector:  c.Bool("skip-vector"),
			SkipKG:      c.Bool("skip-kg"),
			RelaxedGate: c.Bool("relaxed"),
		},
	}, b)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if c.Bool("require-approval") && !res.Decision.Approved {
		return fmt.Errorf("rejected: %s", res.Decision.Reason)
	}
	return nil
}

func seedCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one seed file is required")
	}

	dbPath := c.String("db")
	if dbPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dbPath = cfg.DBPath
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seed, err := storage.LoadSeed(f)
	if err != nil {
		return err
	}

	db, err := storage.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	stats, err := seed.Apply(context.Background(), storage.NewGraphRepo(db))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "seeded %d entities and %d relations into %s\n", stats.Entities, stats.Relations, dbPath)
	return nil
}

func indexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one directory is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL must be set to index documents")
	}

	ctx := context.Background()
	store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
	}

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	pipeline := indexer.NewPipeline(store, embedder, cfg.QdrantCollection,
		indexer.WithBatchSize(c.Int("batch-size")),
		indexer.WithBaseURL(c.String("base-url")),
	)

	stats, err := pipeline.IndexDir(ctx, c.Args().First())
	fmt.Fprintf(c.App.Writer, "indexed %d files into %d chunks (%d empty, %d failed)\n", stats.Files, stats.Chunks, stats.Empty, stats.Failed)
	if err != nil {
		return err
	}

	summary, err := store.Describe(ctx, cfg.QdrantCollection)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "collection %s now holds %d points (status %s)\n", summary.Name, summary.Points, summary.Status)
	return nil
}
