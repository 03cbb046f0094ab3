package main

import (
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/shelfscan/internal/catalog"
	"github.com/jackzampolin/shelfscan/internal/config"
	"github.com/jackzampolin/shelfscan/internal/llm"
	"github.com/jackzampolin/shelfscan/internal/notify"
	"github.com/jackzampolin/shelfscan/internal/queue"
	"github.com/jackzampolin/shelfscan/internal/results"
	"github.com/jackzampolin/shelfscan/internal/segment"
	"github.com/jackzampolin/shelfscan/internal/validate"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a pipeline stage worker",
	Long: `Run a pipeline stage worker.

Workers consume stage messages from the broker, one at a time, and ack
only after their side effects are durable. Run as many replicas of each
stage as throughput needs; the queues serialize ownership.

Examples:
  shelfscan worker segment    # OCR fragments -> book candidates
  shelfscan worker validate   # Book candidates -> validated results`,
}

var workerSegmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Run the segmentation worker",
	Long: `Run the segmentation worker.

Consumes raw OCR text from the segment queue, calls the configured LLM
to group spine fragments into book candidates, and forwards the enriched
message to the validation queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := workerLogger()

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		conn, err := queue.Dial(cfg.QueueURL())
		if err != nil {
			return err
		}
		defer conn.Close()

		publisher, err := queue.NewPublisher(conn)
		if err != nil {
			return err
		}

		client := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey(),
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		})

		worker, err := segment.NewWorker(segment.Config{
			Client:          client,
			Publisher:       publisher,
			Logger:          logger,
			Model:           cfg.Segment.Model,
			MaxModelRetries: cfg.Segment.MaxModelRetries,
			CallTimeout:     cfg.Segment.CallTimeout,
		})
		if err != nil {
			return err
		}

		consumer, err := queue.NewConsumer(conn, queue.ConsumerConfig{
			Queue:      queue.SegmentQueue,
			RoutingKey: queue.SegmentRoutingKey,
			Retry:      cfg.Segment.Retry,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer consumer.Close()

		logger.Info("segmentation worker started", "queue", queue.SegmentQueue)
		return consumer.Start(ctx, worker.Handle)
	},
}

var workerValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the validation worker",
	Long: `Run the validation worker.

Consumes book candidates from the validation queue, fans each candidate
out to the enabled catalog providers, scores the results, writes the
final document to object storage, and announces completion on the event
bus.

Catalog provider changes in the config file take effect without a
restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := workerLogger()

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		catalogs := catalog.NewRegistryFromConfig(cfg.CatalogConfigs(), logger)
		mgr.OnChange(func(c *config.Config) {
			catalogs.Reload(c.CatalogConfigs())
		})
		mgr.WatchConfig()

		storageCfg := cfg.Storage
		storageCfg.SecretKey = cfg.StorageSecretKey()
		store, err := results.NewStore(storageCfg)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.RedisPassword(),
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		bus := notify.NewEventBus(rdb)

		conn, err := queue.Dial(cfg.QueueURL())
		if err != nil {
			return err
		}
		defer conn.Close()

		worker := validate.New(validate.Config{
			Source:        catalogs,
			Store:         store,
			Events:        bus,
			Logger:        logger,
			Weights:       cfg.Scoring,
			SearchTimeout: cfg.Validate.SearchTimeout,
		})

		consumer, err := queue.NewConsumer(conn, queue.ConsumerConfig{
			Queue:      queue.ValidateQueue,
			RoutingKey: queue.ValidateRoutingKey,
			Retry:      cfg.Validate.Retry,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer consumer.Close()

		logger.Info("validation worker started",
			"queue", queue.ValidateQueue,
			"providers", catalogs.List())
		return consumer.Start(ctx, worker.Handle)
	},
}

func workerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func init() {
	workerCmd.AddCommand(workerSegmentCmd)
	workerCmd.AddCommand(workerValidateCmd)
	rootCmd.AddCommand(workerCmd)
}
