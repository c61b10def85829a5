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

	"meat-shop/internal/config"
	"meat-shop/internal/database"
	"meat-shop/internal/logger"
	"meat-shop/internal/server"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 30 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close server resources
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	migrationsDir := pflag.String("migrations", "migrations", "directory holding goose migrations")
	migrateStatus := pflag.Bool("migrate-status", false, "print migration status and exit")
	migrateOnly := pflag.Bool("migrate-only", false, "apply pending migrations and exit")
	pflag.Parse()

	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting meat shop catalog API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database
	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	db := dbService.DB()

	redisClient := server.NewRedisClient(cfg.Redis)

	// Probe dependencies in parallel. Redis is optional: the limiter fails open.
	probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	g, gctx := errgroup.WithContext(probeCtx)
	g.Go(func() error {
		health := dbService.Health(gctx)
		log.Info("Database health check", zap.Any("health", health))
		if health["status"] != "up" {
			return fmt.Errorf("database is %s: %s", health["status"], health["error"])
		}
		return nil
	})
	g.Go(func() error {
		if err := redisClient.Ping(gctx).Err(); err != nil {
			log.Warn("Redis unreachable, rate limiting will let requests through", zap.Error(err))
		}
		return nil
	})
	err = g.Wait()
	cancel()
	if err != nil {
		log.Fatal("Startup dependency check failed", zap.Error(err))
	}

	migrator, err := database.NewMigrator(db, *migrationsDir, log)
	if err != nil {
		log.Fatal("Failed to load migrations", zap.Error(err))
	}

	if *migrateStatus {
		pending, err := migrator.Status(context.Background())
		if err != nil {
			log.Fatal("Failed to read migration status", zap.Error(err))
		}
		log.Info("Migration status", zap.Int("pending", pending))
		_ = redisClient.Close()
		_ = dbService.Close()
		os.Exit(0)
	}

	// Run migrations
	if err := migrator.Up(context.Background()); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	if *migrateOnly {
		_ = redisClient.Close()
		_ = dbService.Close()
		return
	}

	// Create server
	srv, err := server.NewServer(cfg, log, dbService, redisClient)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = srv.AdminService.EnsureBootstrapAdmin(bootstrapCtx,
		cfg.Admin.BootstrapUsername,
		cfg.Admin.BootstrapPassword,
		cfg.Admin.BootstrapEmail,
	)
	cancel()
	if err != nil {
		log.Fatal("Failed to bootstrap admin", zap.Error(err))
	}

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(srv, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info("Graceful shutdown complete")
}
