// es-indexer backfills legacy audit events from postgres into Elasticsearch.
// It streams the audits x audit_deltas join in one pass, rebuilds each
// event's change set, and bulk-writes daily-rotated documents. Runs are
// idempotent per document id; a failed run is simply re-run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/db"
	"github.com/audit-trail/backend/internal/etl"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/repositories"
	"github.com/audit-trail/backend/internal/search"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagFrom          string
	flagUntil         string
	flagModels        string
	flagExcludeModels string
	flagTypeMap       string
	flagExtraMeta     string
	flagIndex         string
	flagBatchSize     int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "es-indexer",
		Short:         "Backfill legacy audit events into the search index",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVar(&flagFrom, "from", "", "start date YYYY-MM-DD, inclusive (default today)")
	rootCmd.Flags().StringVar(&flagUntil, "until", "", "end date YYYY-MM-DD, inclusive (default today)")
	rootCmd.Flags().StringVar(&flagModels, "models", "", "comma-separated model names to include")
	rootCmd.Flags().StringVar(&flagExcludeModels, "exclude-models", "", "comma-separated model names to skip")
	rootCmd.Flags().StringVar(&flagTypeMap, "type-map", "", "model:type overrides, comma-separated")
	rootCmd.Flags().StringVar(&flagExtraMeta, "extra-meta", "", "key:value pairs merged into every document's meta")
	rootCmd.Flags().StringVar(&flagIndex, "index", "", "index template with %s date placeholder (default from env)")
	rootCmd.Flags().IntVar(&flagBatchSize, "batch-size", etl.DefaultBatchSize, "documents per bulk write")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "es-indexer:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log, _ := zap.NewProduction()
	defer log.Sync()
	zap.ReplaceGlobals(log)

	cfg := config.Load()

	// All options parse before anything touches the database.
	from, err := config.ParseDate("from", flagFrom)
	if err != nil {
		return err
	}
	until, err := config.ParseDate("until", flagUntil)
	if err != nil {
		return err
	}
	typeOverrides, err := config.ParsePairs("type-map", flagTypeMap)
	if err != nil {
		return err
	}
	extraMeta, err := config.ParsePairs("extra-meta", flagExtraMeta)
	if err != nil {
		return err
	}

	indexTemplate := cfg.IndexTemplate
	if flagIndex != "" {
		indexTemplate = flagIndex
	}

	query := repositories.DeltaQuery{
		From:          from,
		Until:         until,
		Models:        config.ParseModelList(flagModels),
		ExcludeModels: config.ParseModelList(flagExcludeModels),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupted, stopping")
		cancel()
	}()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := search.NewElasticStore(cfg.ElasticAddresses, log)
	if err != nil {
		return err
	}

	auditRepo := repositories.NewAuditRepo(pool)
	pipeline := etl.NewPipeline(
		etl.NewExtractor(nil),
		etl.NewFormatter(indexTemplate, typeOverrides, extraMeta),
		etl.NewBulkWriter(store, log),
		flagBatchSize,
		log,
	)

	log.Info("backfill starting",
		zap.String("from", from.Format("2006-01-02")),
		zap.String("until", until.Format("2006-01-02")),
		zap.String("index_template", indexTemplate),
		zap.Strings("models", query.Models),
		zap.Strings("exclude_models", query.ExcludeModels),
		zap.Int("batch_size", flagBatchSize),
	)

	start := time.Now()
	stats, err := pipeline.Run(ctx, func(ctx context.Context, fn func(models.DeltaRow) error) error {
		return auditRepo.StreamDeltas(ctx, query, fn)
	})
	if err != nil {
		return err
	}

	log.Info("backfill complete",
		zap.Int("events", stats.Events),
		zap.Int("documents", stats.Documents),
		zap.Int("batches", stats.Batches),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
