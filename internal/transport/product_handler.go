package transport

import (
	"errors"
	"io"
	"net/http"

	"meat-shop/internal/middleware"
	"meat-shop/internal/service"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes caps a multipart image upload
const DefaultMaxUploadBytes = 10 << 20

// StockAdjustmentRequest carries a signed quantity change
type StockAdjustmentRequest struct {
	Delta *int `json:"delta" validate:"required,gte=-2147483648,lte=2147483647"`
}

// ProductHandler exposes the catalog over HTTP
type ProductHandler struct {
	catalog        service.CatalogService
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, maxUploadBytes int64, logger *zap.Logger) *ProductHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ProductHandler{
		catalog:        catalog,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes mounts the product routes. Writes go through protect,
// which is expected to authenticate and authorize an admin.
func (h *ProductHandler) RegisterRoutes(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		// Public routes
		r.Get("/", h.ListAll)
		r.Get("/page", h.ListPage)
		r.Get("/sale", h.ListOnSale)
		r.Get("/article/{code}", h.GetByCode)
		r.Get("/category/{category}", h.ListByCategory)
		r.Get("/{id}", h.GetByID)
		r.Get("/{id}/in-stock", h.InStock)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(protect...)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Patch("/{id}/stock", h.AdjustStock)
			r.Post("/{id}/image", h.AttachImage)
			r.Post("/{id}/upload-image", h.AttachImage)
			r.Delete("/{id}/image", h.DetachImage)
		})
	})
}

func (h *ProductHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListAll(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) ListPage(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.catalog.ListPage(r.Context(), page, size)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, result)
}

func (h *ProductHandler) ListOnSale(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListOnSale(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.catalog.ListByCategory(r.Context(), chi.URLParam(r, "category"), page, size)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, result)
}

func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	product, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// StockStatus answers the in-stock read
type StockStatus struct {
	ID      uuid.UUID `json:"id"`
	InStock bool      `json:"inStock"`
}

func (h *ProductHandler) InStock(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	inStock, err := h.catalog.InStock(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, StockStatus{ID: id, InStock: inStock})
}

func (h *ProductHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Create handles a new catalog entry. Field rules live in the service.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProductInput
	if err := middleware.DecodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	product, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var patch service.UpdateProductInput
	if err := middleware.DecodeJSON(r, &patch); err != nil {
		respondError(w, h.logger, err)
		return
	}

	product, err := h.catalog.Update(r.Context(), id, patch)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var req StockAdjustmentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		respondError(w, h.logger, err)
		return
	}

	product, err := h.catalog.AdjustStock(r.Context(), id, *req.Delta)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// AttachImage reads the multipart "file" part and hands the bytes to the
// catalog. The declared part type wins; a missing one is sniffed.
func (h *ProductHandler) AttachImage(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if r.ContentLength > h.maxUploadBytes {
		middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "image exceeds the upload size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "image exceeds the upload size limit")
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: "file", Message: "This field is required"}})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	result, err := h.catalog.AttachImage(r.Context(), id, data, contentType)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, result)
}

func (h *ProductHandler) DetachImage(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.catalog.DetachImage(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, result)
}
