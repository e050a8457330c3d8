package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mealvault/mealvault/internal/api"
	"github.com/mealvault/mealvault/internal/app"
	"github.com/mealvault/mealvault/internal/app/maintenance"
	"github.com/mealvault/mealvault/internal/backup"
	"github.com/mealvault/mealvault/internal/database"
	"github.com/mealvault/mealvault/internal/repository"
	"github.com/mealvault/mealvault/internal/retry"
	"github.com/mealvault/mealvault/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mealvault-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	store, err := database.OpenStore(cfg.Database.StoreConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}()
	log.Info("store opened", zap.String("path", cfg.Database.Path))

	executor, err := retry.NewExecutor(store)
	if err != nil {
		return fmt.Errorf("initialise retry executor: %w", err)
	}

	repo, err := repository.NewMealRepository(store, executor, nil, cfg.RepositoryConfig())
	if err != nil {
		return fmt.Errorf("initialise repository: %w", err)
	}

	backups, err := backup.NewCoordinator(store, cfg.Backup.Dir)
	if err != nil {
		return fmt.Errorf("initialise backup coordinator: %w", err)
	}

	// One gate serialises backup copies against repository traffic, shared by
	// the HTTP layer and the scheduler.
	gate := &sync.RWMutex{}

	scheduler := maintenance.NewScheduler(backups, cfg.Backup.Schedule,
		maintenance.WithGate(gate),
		maintenance.WithRetention(cfg.Backup.Retention),
	)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start backup scheduler: %w", err)
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	router, err := api.NewRouter(api.Deps{
		Repo:    repo,
		Backups: backups,
		Config:  cfg,
		Gate:    gate,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
