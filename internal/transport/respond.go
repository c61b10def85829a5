package transport

import (
	"errors"
	"net/http"
	"strconv"

	"meat-shop/internal/middleware"
	"meat-shop/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errInvalidID = errors.New("invalid product id")

// statusFor maps the catalog error taxonomy onto HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, middleware.ErrMalformedBody),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, errInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrDependencyFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as the structured error envelope. Internal
// failures are logged and never echoed to the client.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		fields := make([]middleware.ValidationError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, middleware.ValidationError{Field: f.Field, Message: f.Message})
		}
		middleware.RespondWithValidationErrors(w, fields)
		return
	}

	status := statusFor(err)

	var details map[string]interface{}
	var orphan *service.OrphanedAssetError
	if errors.As(err, &orphan) {
		details = map[string]interface{}{"orphanedReference": orphan.Ref}
	}

	switch status {
	case http.StatusInternalServerError:
		logger.Error("Request failed", zap.Error(err))
		middleware.RespondWithErrorDetails(w, status, "internal server error", details)
	case http.StatusServiceUnavailable:
		logger.Warn("Dependency unavailable", zap.Error(err))
		middleware.RespondWithErrorDetails(w, status, "image storage is temporarily unavailable", details)
	default:
		logger.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
		middleware.RespondWithErrorDetails(w, status, err.Error(), details)
	}
}

func productID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

// pageParams reads page and size; absent values are zero and left to the
// service's defaults.
func pageParams(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt(r, "size")
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &service.ValidationError{Fields: []service.FieldError{{Field: key, Message: "Must be an integer"}}}
	}
	return n, nil
}
