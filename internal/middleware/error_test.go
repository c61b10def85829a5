package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// statuses the catalog API can answer with
var catalogErrorStatuses = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusRequestEntityTooLarge,
	http.StatusUnsupportedMediaType,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusServiceUnavailable,
}

// Every error response carries the same envelope
func TestProperty_ErrorsHaveConsistentStructure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("error envelope has code, message and RFC3339 timestamp", prop.ForAll(
		func(idx int, message string) bool {
			status := catalogErrorStatuses[idx]

			w := httptest.NewRecorder()
			RespondWithError(w, status, message)

			if w.Code != status || w.Header().Get("Content-Type") != "application/json" {
				return false
			}

			var response ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}
			if response.Error.Code != http.StatusText(status) || response.Error.Message != message {
				return false
			}
			if response.Error.Details != nil {
				return false
			}
			_, err := time.Parse(time.RFC3339, response.Error.Timestamp)
			return err == nil
		},
		gen.IntRange(0, len(catalogErrorStatuses)-1),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithErrorDetails(w, http.StatusServiceUnavailable, "image storage is temporarily unavailable",
		map[string]interface{}{"orphanedReference": "/uploads/a.png"})

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Service Unavailable", response.Error.Code)
	assert.Equal(t, "/uploads/a.png", response.Error.Details["orphanedReference"])
}

// Validation failures list each rejected field under validation_errors
func TestProperty_ValidationErrorsListEveryField(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every field appears in validation_errors", prop.ForAll(
		func(fields []string) bool {
			errs := make([]ValidationError, 0, len(fields))
			for _, f := range fields {
				errs = append(errs, ValidationError{Field: f, Message: "This field is required"})
			}

			w := httptest.NewRecorder()
			RespondWithValidationErrors(w, errs)
			if w.Code != http.StatusBadRequest {
				return false
			}

			var body struct {
				Error struct {
					Message string `json:"message"`
					Details struct {
						ValidationErrors []ValidationError `json:"validation_errors"`
					} `json:"details"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				return false
			}
			if body.Error.Message != "validation failed" || len(body.Error.Details.ValidationErrors) != len(fields) {
				return false
			}
			for i, ve := range body.Error.Details.ValidationErrors {
				if ve.Field != fields[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(3, gen.Identifier()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithJSON(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithJSON(w, http.StatusCreated, map[string]string{"article": "BEEF-001"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"article":"BEEF-001"}`, w.Body.String())
}

func TestErrorHandlingMiddlewareRecoversPanics(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil product")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	})

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", response.Error.Message)
	assert.NotContains(t, w.Body.String(), "nil product")
}

func TestErrorHandlingMiddlewareRethrowsAbort(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestErrorHandlingMiddlewareReportsRequestID(t *testing.T) {
	handler := chimw.RequestID(ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("stock ledger corrupt")
	})))

	req := httptest.NewRequest(http.MethodPatch, "/api/products/1/stock", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-42", response.Error.Details["requestId"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestErrorHandlingMiddlewareKeepsStartedResponse(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, http.StatusOK, []string{"BEEF-001"})
		panic("late failure")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["BEEF-001"]`, w.Body.String())
}
