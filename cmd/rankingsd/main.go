// Package main wires together the rankings service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/foosdb/rankingsd/internal/api"
	"github.com/foosdb/rankingsd/internal/config"
	collyfetch "github.com/foosdb/rankingsd/internal/fetch/colly"
	"github.com/foosdb/rankingsd/internal/job"
	"github.com/foosdb/rankingsd/internal/logging"
	"github.com/foosdb/rankingsd/internal/metrics"
	"github.com/foosdb/rankingsd/internal/pipeline"
	publishmem "github.com/foosdb/rankingsd/internal/publish/memory"
	publishpubsub "github.com/foosdb/rankingsd/internal/publish/pubsub"
	"github.com/foosdb/rankingsd/internal/rankings"
	storemem "github.com/foosdb/rankingsd/internal/storage/memory"
	"github.com/foosdb/rankingsd/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store rankings.Store
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
			MinConns: int32(cfg.DB.MinConns),
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
	} else {
		logger.Warn("db.dsn not set, using in-memory store; data is lost on restart")
		store = storemem.NewStore()
	}

	var publisher rankings.Publisher
	if cfg.PubSub.ProjectID != "" {
		psPublisher, err := publishpubsub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := psPublisher.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = psPublisher
	} else {
		publisher = publishmem.NewPublisher()
	}

	fetcher := collyfetch.New(collyfetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	supervisor := job.NewSupervisor(ctx, logger.Named("job"))
	pl := pipeline.New(store, fetcher, publisher, logger.Named("pipeline"), cfg.PubSub.TopicName)
	apiServer := api.NewServer(store, supervisor, pl, logger.Named("api"), cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
