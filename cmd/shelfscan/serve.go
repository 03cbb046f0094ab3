package main

import (
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/shelfscan/internal/config"
	"github.com/jackzampolin/shelfscan/internal/ingest"
	"github.com/jackzampolin/shelfscan/internal/notify"
	"github.com/jackzampolin/shelfscan/internal/ocr"
	"github.com/jackzampolin/shelfscan/internal/queue"
	"github.com/jackzampolin/shelfscan/internal/registry"
	"github.com/jackzampolin/shelfscan/internal/results"
	"github.com/jackzampolin/shelfscan/internal/server"
	"github.com/jackzampolin/shelfscan/internal/session"
	"github.com/jackzampolin/shelfscan/internal/svcctx"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the shelfscan gateway",
	Long: `Start the shelfscan gateway HTTP server.

The gateway accepts photo uploads, starts pipeline jobs, and delivers
results over WebSocket sessions. Pipeline stages run separately as
'shelfscan worker segment' and 'shelfscan worker validate'.

The server provides:
  - POST /scan          - Upload a shelf photo, returns a jobId
  - GET  /results/{id}  - Fetch stored results for a finished job
  - GET  /ws            - WebSocket session for job subscriptions
  - /health and /ready  - Liveness and readiness checks

Examples:
  shelfscan serve                  # Listen on the configured address
  shelfscan serve --addr :3000     # Override the listen address`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		// Redis backs both the connection registry and the event bus.
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.RedisPassword(),
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		connReg := registry.New(rdb, cfg.Registry.TTL)
		bus := notify.NewEventBus(rdb)

		storageCfg := cfg.Storage
		storageCfg.SecretKey = cfg.StorageSecretKey()
		store, err := results.NewStore(storageCfg)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}

		conn, err := queue.Dial(cfg.QueueURL())
		if err != nil {
			return err
		}
		defer conn.Close()

		publisher, err := queue.NewPublisher(conn)
		if err != nil {
			return err
		}

		ocrCfg := cfg.OCR
		ocrCfg.APIKey = cfg.OCRAPIKey()
		detector, err := ocr.NewHTTPDetector(ocrCfg)
		if err != nil {
			return err
		}

		dispatcher, err := ingest.NewDispatcher(ingest.Config{
			Detector:  detector,
			Store:     store,
			Publisher: publisher,
			Events:    bus,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		hub := session.NewHub(logger)

		// The notifier bridges event bus channels to WebSocket sessions.
		notifier := notify.New(notify.Config{
			Registry:       connReg,
			Hub:            hub,
			Logger:         logger,
			LookupAttempts: cfg.Notifier.LookupAttempts,
			LookupBackoff:  cfg.Notifier.LookupBackoff,
		})
		completions, err := bus.Subscribe(ctx)
		if err != nil {
			return err
		}
		progress, err := bus.SubscribeProgress(ctx)
		if err != nil {
			return err
		}
		go notifier.Run(ctx, completions)
		go notifier.RunProgress(ctx, progress)

		srv, err := server.New(server.Config{
			Addr:           addr,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			Services: &svcctx.Services{
				Dispatcher:   dispatcher,
				Store:        store,
				ConnRegistry: connReg,
				Hub:          hub,
				Logger:       logger,
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")

	rootCmd.AddCommand(serveCmd)
}
