// Package storage keeps binary product assets outside the catalog database.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// PublicPrefix is the path under which stored assets are referenced and served.
const PublicPrefix = "/uploads/"

var (
	ErrUnavailable   = errors.New("asset store unavailable")
	ErrAssetNotFound = errors.New("asset not found")
	ErrEmptyAsset    = errors.New("asset is empty")
	ErrInvalidName   = errors.New("invalid asset name")
)

// AssetStore persists image bytes and hands back an opaque reference.
type AssetStore interface {
	// Put stores data and returns the reference to record on the product.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	// Delete removes the asset behind ref. A missing asset is not an error.
	Delete(ctx context.Context, ref string) error
	// Open returns the stored file by its bare name, as served over HTTP.
	Open(ctx context.Context, name string) (afero.File, error)
}

// NameFromRef extracts the file name from a reference issued by Put.
// ok is false for references the store did not issue, such as absolute URLs.
func NameFromRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, PublicPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, PublicPrefix)
	if !validName(name) {
		return "", false
	}
	return name, true
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return path.Base(name) == name
}
