package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"meat-shop/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Service owns the connection pool shared by all repositories
type Service struct {
	db *sql.DB
}

// DSN builds a pgx connection string from configuration
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Schema,
	)
}

// New opens the pool. The connection is established lazily by database/sql;
// call Health to verify it.
func New(cfg config.DatabaseConfig) (*Service, error) {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Service{db: db}, nil
}

// DB returns the underlying pool
func (s *Service) DB() *sql.DB {
	return s.db
}

// Health pings the database and reports pool statistics
func (s *Service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	dbStats := s.db.Stats()
	stats["status"] = "up"
	stats["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	stats["idle"] = fmt.Sprintf("%d", dbStats.Idle)
	stats["wait_count"] = fmt.Sprintf("%d", dbStats.WaitCount)

	return stats
}

// Close releases the pool
func (s *Service) Close() error {
	return s.db.Close()
}
