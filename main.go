package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ammiranda/ordered_tree/cache"
	"github.com/ammiranda/ordered_tree/config"
	"github.com/ammiranda/ordered_tree/engine"
	"github.com/ammiranda/ordered_tree/handlers"
	"github.com/ammiranda/ordered_tree/internal/telemetry"
	"github.com/ammiranda/ordered_tree/internal/txretry"
	"github.com/ammiranda/ordered_tree/models"
	"github.com/ammiranda/ordered_tree/repository"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgProvider, err := config.NewProvider("")
	if err != nil {
		return err
	}
	logger := config.NewLogger(ctx, cfgProvider)

	shutdownTracing, err := telemetry.Setup(ctx, cfgProvider)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	dbCfg, err := config.GetDatabaseConfig(ctx, cfgProvider)
	if err != nil {
		logger.Error("failed to load database configuration", "error", err)
		return err
	}
	db, err := repository.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to open database", "driver", dbCfg.Driver, "error", err)
		return err
	}
	defer db.Close()

	treeCache, err := cache.New(ctx, config.GetCacheConfig(ctx, cfgProvider), logger)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		return err
	}

	retrier := txretry.New(0, logger)
	definitions := handlers.NewTreeService(
		engine.New[models.Definition](db.Repository(repository.Definitions), engine.WithLogger(logger)),
		treeCache, retrier, logger)
	components := handlers.NewTreeService(
		engine.New[models.Component](db.Repository(repository.Components), engine.WithLogger(logger)),
		treeCache, retrier, logger)

	if cfgProvider.GetEnvironment() == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(telemetry.ServiceName), handlers.RequestID(logger))
	r.GET("/healthz", handlers.Health(db.DB()))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterRoutes(r, logger, definitions, components)

	addr := ":8080"
	if port, err := cfgProvider.GetString(ctx, "PORT"); err == nil {
		addr = ":" + port
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "driver", dbCfg.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down server", "error", err)
			return err
		}
		logger.Info("server stopped")
	}
	return nil
}
