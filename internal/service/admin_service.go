package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meat-shop/internal/domain"
	"meat-shop/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for admin password hashes
	BcryptCost = 10

	DefaultAccessTokenExpiration = 60 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("admin account is disabled")
	ErrInvalidToken       = errors.New("invalid token")
)

// AdminService authenticates the operators allowed to change the catalog
type AdminService interface {
	Authenticate(ctx context.Context, username, password string) (*domain.Admin, error)
	Login(ctx context.Context, username, password string) (accessToken string, admin *domain.Admin, err error)
	ValidateToken(tokenString string) (*Claims, error)
	GetAdminByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error)
	EnsureBootstrapAdmin(ctx context.Context, username, password, email string) error
}

// Claims represents the JWT claims
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

type adminService struct {
	adminRepo   repository.AdminRepository
	jwtSecret   string
	tokenExpiry time.Duration
	logger      *zap.Logger
}

// NewAdminService creates a new instance of AdminService
func NewAdminService(
	adminRepo repository.AdminRepository,
	jwtSecret string,
	tokenExpiry time.Duration,
	logger *zap.Logger,
) AdminService {
	if tokenExpiry <= 0 {
		tokenExpiry = DefaultAccessTokenExpiration
	}
	return &adminService{
		adminRepo:   adminRepo,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
		logger:      logger,
	}
}

// Authenticate checks credentials and rejects disabled accounts
func (s *adminService) Authenticate(ctx context.Context, username, password string) (*domain.Admin, error) {
	admin, err := s.adminRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}

	if err := s.verifyPassword(admin.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !admin.IsActive {
		return nil, ErrAccountDisabled
	}

	return admin, nil
}

// Login authenticates an admin and issues an access token
func (s *adminService) Login(ctx context.Context, username, password string) (string, *domain.Admin, error) {
	admin, err := s.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.Info("Admin login rejected", zap.String("username", username), zap.Error(err))
		return "", nil, err
	}

	accessToken, err := s.generateAccessToken(admin)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := time.Now()
	if err := s.adminRepo.TouchLastLogin(ctx, admin.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", zap.String("user_id", admin.ID.String()), zap.Error(err))
	} else {
		admin.LastLogin = &now
	}

	s.logger.Info("Admin logged in", zap.String("user_id", admin.ID.String()))

	return accessToken, admin, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *adminService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *adminService) GetAdminByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	admin, err := s.adminRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return nil, fmt.Errorf("%w: admin %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return admin, nil
}

// EnsureBootstrapAdmin creates the first admin when the table is empty.
// It does nothing once any admin exists or when no credentials are configured.
func (s *adminService) EnsureBootstrapAdmin(ctx context.Context, username, password, email string) error {
	if username == "" || password == "" {
		return nil
	}

	count, err := s.adminRepo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if email == "" {
		email = username + "@localhost"
	}

	admin := &domain.Admin{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		FullName:     "Administrator",
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.adminRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrAdminAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.logger.Info("Bootstrap admin created", zap.String("username", username))
	return nil
}

func (s *adminService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *adminService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// generateAccessToken signs an HS256 token carrying user_id and role
func (s *adminService) generateAccessToken(admin *domain.Admin) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: admin.ID,
		Role:   admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}
