package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/cache/redis"
	"github.com/wikitopics/backend/internal/corpus"
	"github.com/wikitopics/backend/internal/crawler"
	"github.com/wikitopics/backend/internal/embed"
	"github.com/wikitopics/backend/internal/graph"
	"github.com/wikitopics/backend/internal/graph/neo4j"
	"github.com/wikitopics/backend/internal/metrics"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/internal/wiki"
	"github.com/wikitopics/backend/pkg/config"
	appLogger "github.com/wikitopics/backend/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		runs         int
		maxPages     int
		maxNewPages  int
		seedPage     string
		langCode     string
		simThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Crawl Wikipedia around a seed topic and build the paragraph corpus",
		Long: `Crawls Wikipedia outward from a seed page, scoring every candidate
against the seed's embedding. On-topic pages feed the paragraph corpus,
the cross-lingual autonym set and the link graph. Runs are resumable:
all progress lives in SQLite and repeated invocations extend it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			cfg.Crawler.Runs = runs
			cfg.Crawler.MaxPages = maxPages
			cfg.Crawler.MaxNewPages = maxNewPages
			if cmd.Flags().Changed("seed-page") {
				cfg.Crawler.SeedPage = seedPage
			}
			if cmd.Flags().Changed("lang") {
				cfg.Crawler.LangCode = langCode
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Crawler.SimThreshold = simThreshold
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 0, "number of crawl runs")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "anchor pages expanded per run")
	cmd.Flags().IntVar(&maxNewPages, "max-new-pages", 0, "candidate links scored per anchor")
	cmd.Flags().StringVar(&seedPage, "seed-page", "", "seed page name")
	cmd.Flags().StringVar(&langCode, "lang", "", "crawl language code")
	cmd.Flags().Float64Var(&simThreshold, "threshold", 0, "similarity threshold")

	cmd.MarkFlagRequired("runs")
	cmd.MarkFlagRequired("max-pages")
	cmd.MarkFlagRequired("max-new-pages")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	metrics.Init()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.NewStore(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	wikiClient := wiki.NewClient(
		cfg.Wiki.AccessToken,
		cfg.Wiki.AppName,
		cfg.Wiki.Email,
		time.Duration(cfg.Wiki.TimeoutSec)*time.Second,
	)

	encoder := embed.NewClient(
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		cfg.Embedding.Dim,
		time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
	)
	if cfg.Redis.Enabled {
		cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embeddings will not be cached", zap.Error(err))
		} else {
			defer cache.Close()
			encoder = encoder.WithCache(cache, redis.TextKey)
		}
	}

	for i := 0; i < cfg.Crawler.Runs; i++ {
		if ctx.Err() != nil {
			appLogger.Info("Interrupted, stopping runs", zap.Int("completed_runs", i))
			break
		}

		runID := uuid.NewString()
		appLogger.Info("Starting crawl run",
			zap.String("run_id", runID),
			zap.Int("run", i+1),
			zap.Int("runs", cfg.Crawler.Runs),
		)

		if err := crawlRun(ctx, cfg, store, wikiClient, encoder); err != nil {
			metrics.CrawlRuns.WithLabelValues("failed").Inc()
			appLogger.Error("Crawl run failed, continuing with next run",
				zap.String("run_id", runID),
				zap.Error(err),
			)
			continue
		}
		metrics.CrawlRuns.WithLabelValues("completed").Inc()

		logTableCounts(store, runID)
	}

	if cfg.Neo4j.Enabled {
		if err := exportGraph(ctx, cfg, store); err != nil {
			appLogger.Error("Failed to export link graph", zap.Error(err))
		}
	}

	appLogger.Info("All runs finished")
	return nil
}

func crawlRun(ctx context.Context, cfg *config.Config, store *sqlite.Store, wikiClient *wiki.Client, encoder *embed.Client) error {
	c, err := crawler.New(ctx, store, wikiClient, encoder, crawler.Config{
		SeedPage:     cfg.Crawler.SeedPage,
		LangCode:     cfg.Crawler.LangCode,
		LangCodes:    cfg.Crawler.LangCodes,
		SimThreshold: cfg.Crawler.SimThreshold,
		MaxPages:     cfg.Crawler.MaxPages,
		MaxNewPages:  cfg.Crawler.MaxNewPages,
	})
	if err != nil {
		return fmt.Errorf("failed to seed crawler: %w", err)
	}

	if err := c.Crawl(ctx); err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	manager := corpus.NewManager(store, wikiClient, encoder, cfg.Crawler.LangCodes, cfg.Crawler.SimThreshold)
	if err := manager.Build(ctx); err != nil {
		return fmt.Errorf("corpus build failed: %w", err)
	}

	builder := graph.NewBuilder(store, wikiClient, cfg.Crawler.LangCode, cfg.Crawler.SimThreshold)
	if err := builder.BuildPageLinks(ctx); err != nil {
		return fmt.Errorf("link graph build failed: %w", err)
	}

	return nil
}

func exportGraph(ctx context.Context, cfg *config.Config, store *sqlite.Store) error {
	client, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return fmt.Errorf("failed to create neo4j client: %w", err)
	}
	defer client.Close(ctx)

	edges, err := store.GetPageLinks(cfg.Crawler.LangCode)
	if err != nil {
		return fmt.Errorf("failed to load link graph: %w", err)
	}

	filtered := graph.Filter(edges, graph.DefaultFilterOptions())
	if err := client.ExportEdges(ctx, filtered); err != nil {
		return err
	}

	top, err := client.TopTargets(ctx, 10)
	if err != nil {
		appLogger.Warn("Failed to query top targets", zap.Error(err))
		return nil
	}
	appLogger.Info("Most referenced pages", zap.Strings("names", top))
	return nil
}

func logTableCounts(store *sqlite.Store, runID string) {
	counts, err := store.TableCounts()
	if err != nil {
		appLogger.Warn("Failed to read table counts", zap.Error(err))
		return
	}

	fields := []zap.Field{zap.String("run_id", runID)}
	for table, count := range counts {
		fields = append(fields, zap.Int(table, count))
	}
	appLogger.Info("Run complete", fields...)
}
