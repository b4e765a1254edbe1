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

	"adrotator/internal/delivery"
	"adrotator/internal/infrastructure"
	"adrotator/internal/usecase"
	"adrotator/pkg/config"
	"adrotator/pkg/logger"
	"adrotator/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const historySize = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	inventory := infrastructure.NewHTTPClient(cfg.Inventory, log, m)
	defer inventory.Close()

	activity := infrastructure.NewActivityRepository(log)
	presenter := infrastructure.NewSurfacePresenter(activity, historySize, log)

	engine := usecase.NewLifecycleController(cfg.Rotation, inventory, presenter, log, m)
	defer engine.Destroy()

	handlers := delivery.NewHTTPHandlers(engine, presenter, activity, log)
	router := delivery.NewHTTPRouter(handlers, log, m, promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	log.WithFields(map[string]any{
		"port":      cfg.Server.Port,
		"ad_type":   cfg.Inventory.AdType,
		"engine_id": engine.EngineID(),
	}).Info("Starting server")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Start(ctx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
