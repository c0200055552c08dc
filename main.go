package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mlplayground/config"
	"mlplayground/db"
	mlhttp "mlplayground/http"
	"mlplayground/logging"
	"mlplayground/ml"
	"mlplayground/monitoring"
	"mlplayground/pipeline"
	"mlplayground/recommend"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	watchConfig := err == nil
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Initialize database
	if cfg.Database.Path != "" {
		if err := db.InitDB(cfg.Database.Path); err != nil {
			logger.Fatal("failed to initialize database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	enc, err := ml.EncoderFor(cfg.ML.Colors, cfg.ML.Locations)
	if err != nil {
		logger.Fatal("invalid vocabularies", zap.Error(err))
	}

	// 3. Wire worker, hub and API
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(logger, metrics, cfg.HTTP.AllowedOrigins)
	bus := recommend.NewBus()
	bus.Subscribe(hub.Publish)
	bus.Subscribe(metrics.Publish)
	worker := recommend.NewWorker(bus,
		recommend.WithStepDelay(cfg.Recommend.StepDelay),
		recommend.WithLogger(logger))

	api := mlhttp.NewAPI(cfg.ML, mlhttp.Deps{
		Encoder: enc,
		Cleaner: pipeline.NewRecordCleaner(enc, logger),
		Worker:  worker,
		Metrics: metrics,
		Logger:  logger,
	})
	server := mlhttp.NewServer(cfg.HTTP, mlhttp.NewRouter(cfg.HTTP, api, hub, metrics, logger), logger)

	// 4. Run until a signal arrives or a component fails
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error { return ignoreCanceled(worker.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(hub.Run(ctx)) })
	if watchConfig {
		g.Go(func() error {
			return ignoreCanceled(config.Watch(ctx, *configPath, logger, func(next *config.Config) {
				if err := logging.SetLevel(level, next.Log.Level); err != nil {
					logger.Warn("ignoring log level", zap.Error(err))
				}
				api.SetReuseTrainingBounds(next.ML.ReuseTrainingBounds)
				logger.Info("config reloaded",
					zap.String("log_level", next.Log.Level),
					zap.Bool("reuse_training_bounds", next.ML.ReuseTrainingBounds))
			}))
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		worker.Stop()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("exiting with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("exiting")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
