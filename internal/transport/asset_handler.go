package transport

import (
	"errors"
	"io"
	"net/http"
	"time"

	"meat-shop/internal/middleware"
	"meat-shop/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AssetHandler serves stored product images
type AssetHandler struct {
	store  storage.AssetStore
	logger *zap.Logger
}

func NewAssetHandler(store storage.AssetStore, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{store: store, logger: logger}
}

func (h *AssetHandler) RegisterRoutes(r chi.Router) {
	r.Get(storage.PublicPrefix+"{name}", h.Serve)
	r.Get("/api/images/{name}", h.Serve)
}

func (h *AssetHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	f, err := h.store.Open(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAssetNotFound), errors.Is(err, storage.ErrInvalidName):
			middleware.RespondWithError(w, http.StatusNotFound, "image not found")
		case errors.Is(err, storage.ErrUnavailable):
			h.logger.Warn("Asset store unavailable", zap.String("asset_name", name), zap.Error(err))
			middleware.RespondWithError(w, http.StatusServiceUnavailable, "image storage is temporarily unavailable")
		default:
			h.logger.Error("Failed to open asset", zap.String("asset_name", name), zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		h.logger.Error("Failed to sniff asset", zap.String("asset_name", name), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		h.logger.Error("Failed to rewind asset", zap.String("asset_name", name), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	// names are never reused, so the content never changes
	w.Header().Set("Content-Type", mtype.String())
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, name, modTime, f)
}
