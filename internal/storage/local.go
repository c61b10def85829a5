package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// LocalStore keeps assets as flat files in an afero filesystem.
type LocalStore struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewLocalStore roots a store at dir on the host filesystem, creating it if needed.
func NewLocalStore(dir string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir), logger), nil
}

// NewLocalStoreFs builds a store over an existing filesystem.
func NewLocalStoreFs(fs afero.Fs, logger *zap.Logger) *LocalStore {
	return &LocalStore{fs: fs, logger: logger}
}

func (s *LocalStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAsset
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + extensionFor(data, contentType)
	if err := afero.WriteFile(s.fs, name, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}

	s.logger.Debug("Asset stored",
		zap.String("asset_name", name),
		zap.Int("size_bytes", len(data)),
	)

	return PublicPrefix + name, nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	name, ok := NameFromRef(ref)
	if !ok {
		// not ours to remove
		s.logger.Debug("Skipping delete of foreign asset reference", zap.String("asset_ref", ref))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	return nil
}

func (s *LocalStore) Open(ctx context.Context, name string) (afero.File, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to open asset: %w", err)
	}
	return f, nil
}

// extensionFor prefers the sniffed type over the declared one.
func extensionFor(data []byte, contentType string) string {
	if ext := mimetype.Detect(data).Extension(); ext != "" {
		return ext
	}
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}
