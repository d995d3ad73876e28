package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"asset-orchestrator/api/rest/handlers"
	"asset-orchestrator/api/rest/routes"
	"asset-orchestrator/config"
	"asset-orchestrator/core/generation"
	"asset-orchestrator/core/pipeline"
	"asset-orchestrator/core/repository"
	"asset-orchestrator/providers/aws"
	"asset-orchestrator/storage"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server exited")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := config.LoadPipeline(cfg)
	if err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	// Initialize providers
	awsClient, err := aws.NewClient(ctx, cfg.AWSRegion, cfg.ImageRegion)
	if err != nil {
		return err
	}

	jobs, closeJobs, err := openJobStore(ctx, cfg, awsClient)
	if err != nil {
		return err
	}
	defer closeJobs()

	artifacts := storage.NewS3Store(awsClient.S3, cfg.ArtifactBucket)
	urls, err := storage.NewPresignCache(artifacts, storage.CacheOptions{
		TTL:        cfg.URLCacheTTL,
		Validity:   cfg.PresignValidity,
		MaxEntries: cfg.URLCacheSize,
	})
	if err != nil {
		return err
	}

	targets := aws.NewTargetChecker(awsClient.EC2, opts.Targets())
	if cfg.VerifyTargets {
		verifyTargets(ctx, targets, logger)
	}

	// Initialize services
	executor := aws.NewSSMExecutor(awsClient.SSM)
	submitter, err := pipeline.NewSubmitter(opts, executor, jobs, logger)
	if err != nil {
		return err
	}
	status, err := pipeline.NewStatusService(opts, executor, jobs, urls, logger)
	if err != nil {
		return err
	}
	images := generation.NewService(
		aws.NewBedrockImageBackend(awsClient.Bedrock, cfg.ImageModelID),
		artifacts,
		generation.Options{RemoveBackground: cfg.RemoveBackground, URLValidity: cfg.PresignValidity},
		logger,
	)

	var assets *handlers.AssetHandler
	if cfg.CatalogTable != "" {
		catalog := repository.NewCatalogRepository(awsClient.DynamoDB, cfg.CatalogTable)
		assets = handlers.NewAssetHandler(catalog, urls, cfg.CatalogBucket, logger)
	}

	handler := routes.NewHandler(routes.Handlers{
		Jobs:   handlers.NewJobHandler(submitter, status, logger),
		Images: handlers.NewImageHandler(images, logger),
		Assets: assets,
		Health: handlers.NewHealthHandler(targets, logger),
	}, logger)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.ServerPort).
			Str("jobStore", cfg.JobStore).
			Str("bucket", cfg.ArtifactBucket).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openJobStore returns the configured job record store and its cleanup func.
func openJobStore(ctx context.Context, cfg *config.Config, awsClient *aws.Client) (repository.JobRepository, func(), error) {
	switch cfg.JobStore {
	case config.StorePostgres, config.StoreSQLite:
		db, err := repository.NewDB(cfg.JobStore, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repository.NewSQLJobRepository(db), func() { db.Close() }, nil
	default:
		return repository.NewDynamoJobRepository(awsClient.DynamoDB, cfg.JobTable), func() {}, nil
	}
}

func verifyTargets(ctx context.Context, targets *aws.TargetChecker, logger zerolog.Logger) {
	health, err := targets.Check(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not verify executor targets")
		return
	}
	for _, t := range aws.Unavailable(health) {
		logger.Warn().Str("target", t.InstanceID).Str("state", t.State).Msg("executor target unavailable")
	}
}
