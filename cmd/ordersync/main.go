// Package main запускает сервис синхронизации заказов маркетплейса с магазином.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ordersync/internal/config"
	"github.com/mmeshcher/ordersync/internal/handler"
	"github.com/mmeshcher/ordersync/internal/logger"
	"github.com/mmeshcher/ordersync/internal/metrics"
	"github.com/mmeshcher/ordersync/internal/middleware"
	"github.com/mmeshcher/ordersync/internal/repository"
	"github.com/mmeshcher/ordersync/internal/service"
	"github.com/mmeshcher/ordersync/internal/shopware"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	client := shopware.NewClient(cfg, log, shopware.WithMetrics(reg))

	var journal service.Journal
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		journal = repo
	}

	svc := service.NewService(cfg, client, journal, reg, log)
	defer svc.Close()

	if cfg.ReplayFile != "" {
		report, err := svc.ProcessFile(ctx, cfg.ReplayFile)
		if err != nil {
			sugar.Errorw("replay failed", "file", cfg.ReplayFile, "error", err.Error())
			return
		}
		sugar.Infow("replay finished",
			"file", cfg.ReplayFile,
			"created", report.Created,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
		return
	}

	if err := os.MkdirAll(cfg.QueuePath, 0o755); err != nil {
		sugar.Fatalw("queue directory error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.UIUsername, cfg.UIPassword)
	if !authMiddleware.Enabled() {
		sugar.Warn("UI_USERNAME/UI_PASSWORD not set, operator UI is not protected")
	}
	h := handler.NewHandler(svc, cfg, log, authMiddleware, reg)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.RunQueuePolling(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting ordersync server", "addr", cfg.RunAddress, "queue", cfg.QueuePath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
