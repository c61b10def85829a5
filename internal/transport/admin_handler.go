package transport

import (
	"errors"
	"net/http"
	"time"

	"meat-shop/internal/domain"
	"meat-shop/internal/middleware"
	"meat-shop/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	Admin       AdminProfile `json:"admin"`
}

// AdminProfile represents admin profile data
type AdminProfile struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name,omitempty"`
	Role      string  `json:"role"`
	LastLogin *string `json:"last_login,omitempty"`
}

func toProfile(a *domain.Admin) AdminProfile {
	p := AdminProfile{
		ID:       a.ID.String(),
		Username: a.Username,
		Email:    a.Email,
		FullName: a.FullName,
		Role:     a.Role,
	}
	if a.LastLogin != nil {
		ts := a.LastLogin.UTC().Format(time.RFC3339)
		p.LastLogin = &ts
	}
	return p
}

// AdminHandler handles HTTP requests for admin authentication
type AdminHandler struct {
	adminService service.AdminService
	logger       *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(adminService service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// RegisterRoutes registers the admin routes. login is wrapped by loginGuard
// (rate limiting); profile by protect.
func (h *AdminHandler) RegisterRoutes(r chi.Router, loginGuard []func(http.Handler) http.Handler, protect ...func(http.Handler) http.Handler) {
	r.Route("/api/admin", func(r chi.Router) {
		r.With(loginGuard...).Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(protect...)
			r.Get("/profile", h.GetProfile)
		})
	})
}

// Login handles admin authentication
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Login validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accessToken, admin, err := h.adminService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			middleware.RespondWithError(w, http.StatusUnauthorized, "invalid username or password")
		case errors.Is(err, service.ErrAccountDisabled):
			middleware.RespondWithError(w, http.StatusForbidden, "account is disabled")
		default:
			h.logger.Error("Login failed", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, LoginResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Admin:       toProfile(admin),
	})
}

// GetProfile returns the authenticated admin
func (h *AdminHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userIDStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.logger.Error("User ID not found in context")
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.logger.Warn("Invalid user ID format", zap.Error(err))
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid token claims")
		return
	}

	admin, err := h.adminService.GetAdminByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "admin not found")
			return
		}
		h.logger.Error("Failed to get admin profile", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get admin profile")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProfile(admin))
}
