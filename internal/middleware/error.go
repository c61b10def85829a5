package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed catalog request
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the status text as Code. Details holds
// validation_errors, orphanedReference or requestId depending on the failure.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

const (
	detailValidationErrors = "validation_errors"
	detailRequestID        = "requestId"
)

func newErrorResponse(status int, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Code:      http.StatusText(status),
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	writeJSON(w, statusCode, payload)
}

func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithErrorDetails(w, statusCode, message, nil)
}

// RespondWithErrorDetails writes the error envelope. Error bodies are never
// cached by intermediaries.
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, statusCode, newErrorResponse(statusCode, message, details))
}

// RespondWithValidationErrors answers 400 with one entry per rejected field
func RespondWithValidationErrors(w http.ResponseWriter, errors []ValidationError) {
	RespondWithErrorDetails(w, http.StatusBadRequest, "validation failed", map[string]interface{}{
		detailValidationErrors: errors,
	})
}

// ErrorHandlingMiddleware turns a panic into a 500 that names the request id
// so the log line can be found. http.ErrAbortHandler is re-raised for
// net/http. Nothing is written if the handler already started its response.
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				reqID := middleware.GetReqID(r.Context())
				logger.Error("Panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", reqID),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Bool("response_started", ww.Status() != 0),
					zap.Stack("stack"),
				)

				if ww.Status() != 0 {
					return
				}
				var details map[string]interface{}
				if reqID != "" {
					details = map[string]interface{}{detailRequestID: reqID}
				}
				RespondWithErrorDetails(ww, http.StatusInternalServerError, "internal server error", details)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
