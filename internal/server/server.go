package server

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"meat-shop/internal/config"
	"meat-shop/internal/database"
	"meat-shop/internal/metrics"
	custommiddleware "meat-shop/internal/middleware"
	"meat-shop/internal/repository"
	"meat-shop/internal/service"
	"meat-shop/internal/storage"
	"meat-shop/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	db      *database.Service
	redis   *redis.Client
	metrics *metrics.Metrics

	AdminService service.AdminService
}

// NewRedisClient builds the client used for rate limiting
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewServer wires repositories, the asset store, services and handlers into
// one router. redisClient may be nil, which disables rate limiting.
func NewServer(cfg *config.Config, logger *zap.Logger, db *database.Service, redisClient *redis.Client) (*Server, error) {
	m := metrics.New()

	localStore, err := storage.NewLocalStore(cfg.Storage.UploadDir, logger)
	if err != nil {
		return nil, err
	}
	assets := storage.NewGuardedStore(localStore, storage.GuardConfig{
		Timeout:             cfg.Storage.Timeout,
		ConsecutiveFailures: cfg.Storage.BreakerConsecutiveFailures,
		OpenTimeout:         cfg.Storage.BreakerOpenTimeout,
		Observer:            m.ObserveAssetOp,
	}, logger)

	// Initialize repositories
	productRepo := repository.NewProductRepository(db.DB())
	adminRepo := repository.NewAdminRepository(db.DB())

	// Initialize services
	catalog := service.NewCatalogService(productRepo, assets, m, logger, service.CatalogOptions{
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		DefaultPageSize: cfg.Catalog.DefaultPageSize,
		MaxPageSize:     cfg.Catalog.MaxPageSize,
	})
	adminService := service.NewAdminService(
		adminRepo,
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpiry)*time.Minute,
		logger,
	)

	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.SecurityHeaders(!cfg.IsDevelopment()))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.IsDevelopment()))
	router.Use(m.Middleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := db.Health(r.Context())
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})
	router.Method(http.MethodGet, "/metrics", m.Handler())

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminOnly := []func(http.Handler) http.Handler{authMiddleware, custommiddleware.RequireAdmin(logger)}

	var loginGuard []func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled && redisClient != nil {
		loginGuard = append(loginGuard, custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "rate_limit:admin_login",
		}, logger))
		// runs after auth so writes are counted per admin
		adminOnly = append(adminOnly, custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "rate_limit:catalog_write",
		}, logger))
	}

	// Register routes
	transport.NewAssetHandler(assets, logger).RegisterRoutes(router)
	transport.NewProductHandler(catalog, cfg.Storage.MaxUploadBytes, logger).RegisterRoutes(router, adminOnly...)
	transport.NewAdminHandler(adminService, logger).RegisterRoutes(router, loginGuard, adminOnly...)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		config:       cfg,
		logger:       logger,
		db:           db,
		redis:        redisClient,
		metrics:      m,
		AdminService: adminService,
	}

	return server, nil
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
