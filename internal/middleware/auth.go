package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

// adminClaims is what an admin login token carries. Tokens without an
// expiry are refused.
type adminClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var errBadAuthHeader = errors.New("invalid authorization header format")

// bearerToken pulls the token out of "Bearer <token>".
func bearerToken(header string) (string, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" || strings.ContainsRune(token, ' ') {
		return "", errBadAuthHeader
	}
	return token, nil
}

// AuthMiddleware admits requests with a valid HS256 admin token and puts
// the admin id and role on the request context. Catalog writes sit behind it.
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	key := func(*jwt.Token) (interface{}, error) { return []byte(jwtSecret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				logger.Debug("Missing authorization header", zap.String("path", r.URL.Path))
				RespondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			raw, err := bearerToken(header)
			if err != nil {
				logger.Debug("Rejected authorization header", zap.String("path", r.URL.Path))
				RespondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims := &adminClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, key); err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				message := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					message = "token expired"
				}
				RespondWithError(w, http.StatusUnauthorized, message)
				return
			}

			if claims.UserID == "" || claims.Role == "" {
				logger.Warn("Admin token without identity claims", zap.String("subject", claims.Subject))
				RespondWithError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated admin id, if any
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetUserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}
