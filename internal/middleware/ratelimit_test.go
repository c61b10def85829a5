package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLimitedHandler(t *testing.T, mr *miniredis.Miniredis, limit int) http.Handler {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := RateLimitMiddleware(client, RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Minute,
		KeyPrefix:         "rate_limit:admin_login",
	}, zap.NewNop())

	return limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

// A client gets exactly the configured number of requests per window
func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	properties := gopter.NewProperties(nil)

	properties.Property("requests past the limit get 429", prop.ForAll(
		func(limit, excess int) bool {
			mr.FlushAll()
			handler := newLimitedHandler(t, mr, limit)

			allowed, blocked := 0, 0
			for i := 0; i < limit+excess; i++ {
				req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
				// a new source port per connection must not reset the budget
				req.RemoteAddr = fmt.Sprintf("192.168.1.100:%d", 40000+i)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					allowed++
				case http.StatusTooManyRequests:
					blocked++
				}
			}

			return allowed == limit && blocked == excess
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitHeaders(t *testing.T) {
	mr := miniredis.RunT(t)
	handler := newLimitedHandler(t, mr, 2)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
		req.RemoteAddr = "10.1.1.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := send()
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	send()
	w = send()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retry, 1)
}

func TestRateLimitWindowExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	handler := newLimitedHandler(t, mr, 1)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
		req.RemoteAddr = "10.1.1.2:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, send())
}

func TestRateLimitKeysAdminsByAccount(t *testing.T) {
	mr := miniredis.RunT(t)
	handler := newLimitedHandler(t, mr, 1)

	send := func(userID, addr string) int {
		req := httptest.NewRequest(http.MethodPut, "/api/products/x", nil)
		req.RemoteAddr = addr
		if userID != "" {
			req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("admin-1", "10.0.0.1:1"))
	// same account from another address shares the budget
	assert.Equal(t, http.StatusTooManyRequests, send("admin-1", "10.0.0.2:1"))
	// a different account from the first address does not
	assert.Equal(t, http.StatusOK, send("admin-2", "10.0.0.1:1"))

	assert.True(t, mr.Exists("rate_limit:admin_login:admin:admin-1"))
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	handler := newLimitedHandler(t, mr, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
		req.RemoteAddr = "10.1.1.3:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
