package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrator applies the catalog schema from a directory of goose SQL files
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string, logger *zap.Logger) (*Migrator, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(migrationsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", migrationsDir, err)
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Up applies every pending migration and logs each one as it lands.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		m.logger.Info("Migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("duration", r.Duration),
		)
	}
	if err != nil {
		m.logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	m.logger.Info("Schema up to date", zap.Int64("version", version), zap.Int("applied", len(results)))
	return nil
}

// Status logs every known migration and returns how many are still pending.
func (m *Migrator) Status(ctx context.Context) (int, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration status: %w", err)
	}

	pending := 0
	for _, s := range statuses {
		fields := []zap.Field{
			zap.Int64("version", s.Source.Version),
			zap.String("file", s.Source.Path),
			zap.String("state", string(s.State)),
		}
		if s.State == goose.StatePending {
			pending++
		} else {
			fields = append(fields, zap.Time("applied_at", s.AppliedAt))
		}
		m.logger.Info("Migration", fields...)
	}
	return pending, nil
}
