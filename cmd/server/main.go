package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heartline/internal/config"
	"heartline/internal/database"
	"heartline/internal/engine"
	"heartline/internal/handlers"
	"heartline/internal/logging"
	"heartline/internal/middleware"
	"heartline/internal/utils"
	"heartline/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Log, os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (database.DBAdapter, error) {
	switch cfg.Type {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart")
		return database.NewMemoryDB(), nil

	case "mongo", "mongodb":
		return database.NewMongoDB(cfg.URI, cfg.MongoDatabase, logger)

	default:
		pg, err := database.NewPostgresDB(cfg.URI, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.InitializeTables(ctx); err != nil {
			pg.Close(ctx)
			return nil, fmt.Errorf("failed to initialize tables: %w", err)
		}
		return pg, nil
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			logger.Warn("failed to close database", "err", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := utils.NewMetricsCollector(registry)

	system := actor.NewActorSystem()
	chatEngine := engine.NewEngine(system, db, db, metrics, logger, cfg.Server.RequestTimeout)
	defer chatEngine.Stop()

	pipeline := engine.NewPipeline(db, chatEngine, nil, metrics, logger)
	hub := websocket.NewHub(pipeline, metrics, logger, cfg.Server.RequestTimeout)
	pipeline.SetNotifier(hub)

	if cfg.NATS.URL != "" {
		relay, err := websocket.NewHubRelay(hub, cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return err
		}
		defer relay.Close()
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	var gatherer prometheus.Gatherer
	if cfg.Server.MetricsEnabled {
		gatherer = registry
	}
	server := handlers.NewServer(
		chatEngine,
		db,
		hub,
		middleware.NewAuthenticator(cfg.Auth, logger),
		middleware.DefaultCORSConfig(cfg.AllowedOrigins),
		metrics,
		gatherer,
		logger,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", httpServer.Addr, "db", cfg.Database.Type, "nats", cfg.NATS.URL != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		stopHub()
		<-hubDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	stopHub()
	<-hubDone
	return nil
}
