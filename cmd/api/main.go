package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"folio/api/internal/app"
	"folio/api/internal/config"
	"folio/api/internal/export"
	"folio/api/internal/gitrepo"
	"folio/api/internal/logging"
	"folio/api/internal/objectstore"
	"folio/api/internal/refstore"
	"folio/api/internal/search"
	"folio/api/internal/snapshot"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, logCloser, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()

	ctx := context.Background()

	refs, err := openReferences(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer refs.Close()

	var metadata refstore.MetadataSource = refs
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := refstore.NewRedisCache(cfg.RedisURL, cfg.CacheTTL, refs, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer cache.Close()
		metadata = cache
		logger.Info("reference metadata cached in redis", "ttl", cfg.CacheTTL)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}

	objects, err := openObjects(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, search.NewStoreSearcher(refs), logger)
	defer searchService.Flush()

	service, err := app.NewService(cfg, app.Deps{
		References: refs,
		Metadata:   metadata,
		Drafts:     gitrepo.New(cfg.ReposDir),
		Snapshots:  snapshot.New(objects),
		Objects:    objects,
		Search:     searchService,
		Exporter:   export.NewService(cfg.PandocPath),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	go service.ReindexReferences(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("folio api listening", "addr", cfg.Addr, "default_style", cfg.DefaultStyle)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}

// openReferences uses Postgres when DATABASE_URL is set and the local
// SQLite file otherwise.
func openReferences(ctx context.Context, cfg config.Config, logger *slog.Logger) (refstore.Store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		store, err := refstore.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("using sqlite reference store", "path", cfg.SQLitePath)
		return store, nil
	}

	db, err := refstore.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := refstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	logger.Info("using postgres reference store")
	return refstore.NewPostgresStore(db), nil
}

// openObjects uses MinIO when an endpoint is configured and a local
// directory otherwise.
func openObjects(ctx context.Context, cfg config.Config, logger *slog.Logger) (objectstore.Store, error) {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		dir, err := objectstore.NewDir(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("snapshot dir: %w", err)
		}
		return dir, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := objectstore.NewMinio(connectCtx, objectstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	logger.Info("using minio object store", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	return store, nil
}
