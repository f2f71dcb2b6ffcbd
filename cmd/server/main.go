package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"persondb/internal/config"
	apphttp "persondb/internal/http"
	"persondb/internal/repository"
	"persondb/internal/repository/memory"
	"persondb/internal/repository/sqlite"
	"persondb/internal/service"
	"persondb/internal/snapshot"
	"persondb/internal/stats"
	"persondb/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		logger.Fatalf("setup store: %v", err)
	}
	defer closeRepo()
	logger.Infof("using %s person store", cfg.Store.Backend)

	personService := service.NewPersonService(repo, logger)
	var collector *stats.Collector
	if cfg.Stats.Enabled {
		collector = stats.NewCollector()
		personService = service.WithStats(personService, collector)
	}

	var snapshots apphttp.Snapshots
	if cfg.Storage.Bucket != "" {
		storageSvc, err := storage.NewS3ServiceFromConfig(ctx, storage.S3Options{
			Region:      cfg.Storage.Region,
			Profile:     cfg.AWS.Profile,
			Endpoint:    cfg.Storage.Endpoint,
			MaxAttempts: cfg.Storage.MaxAttempts,
		})
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
		exporter := snapshot.NewExporter(snapshot.Config{
			Bucket:    cfg.Storage.Bucket,
			KeyPrefix: cfg.Storage.KeyPrefix,
			Retain:    cfg.Storage.Retain,
			Logger:    logger,
		}, personService, storageSvc)

		if cfg.Storage.RestoreOnStart {
			if _, err := exporter.Restore(ctx, ""); err != nil {
				if !errors.Is(err, storage.ErrObjectNotFound) {
					logger.Fatalf("restore snapshot: %v", err)
				}
				logger.Warn("no snapshot to restore")
			}
		}
		snapshots = exporter
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(personService, snapshots, apphttp.Options{
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
		AdminToken: cfg.Auth.AdminToken,
		Logger:     logger,
		Stats:      collector,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildRepository(ctx context.Context, cfg config.Config) (repository.PersonRepository, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		repo := sqlite.NewPersonRepository(db)
		if err := repo.Init(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init person repository: %w", err)
		}
		return repo, func() { db.Close() }, nil
	default:
		return memory.NewPersonRepository(), func() {}, nil
	}
}
