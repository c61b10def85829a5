package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Catalog   CatalogConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret       string
	AccessExpiry int // in minutes
}

// StorageConfig describes where product images live and how they are exposed.
type StorageConfig struct {
	UploadDir      string
	PublicBaseURL  string
	Timeout        time.Duration
	MaxUploadBytes int64

	BreakerConsecutiveFailures uint32
	BreakerOpenTimeout         time.Duration
}

type CatalogConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
}

// AdminConfig seeds the first administrator when the table is empty.
type AdminConfig struct {
	BootstrapUsername string
	BootstrapPassword string
	BootstrapEmail    string
}

// IsDevelopment reports whether the service runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

func Load() *Config {
	// Values already present in the environment win over .env
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not read .env file: %v", err)
	}

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 60)
	viper.SetDefault("STORAGE_UPLOAD_DIR", "uploads")
	viper.SetDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080")
	viper.SetDefault("STORAGE_TIMEOUT", "5s")
	viper.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 10<<20)
	viper.SetDefault("STORAGE_BREAKER_CONSECUTIVE_FAILURES", 5)
	viper.SetDefault("STORAGE_BREAKER_OPEN_TIMEOUT", "30s")
	viper.SetDefault("CATALOG_DEFAULT_PAGE_SIZE", 20)
	viper.SetDefault("CATALOG_MAX_PAGE_SIZE", 100)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 60)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")

	return &Config{
		Server: ServerConfig{
			Port:     viper.GetString("SERVER_PORT"),
			Env:      viper.GetString("SERVER_ENV"),
			LogLevel: viper.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:       viper.GetString("JWT_SECRET"),
			AccessExpiry: viper.GetInt("JWT_ACCESS_EXPIRY"),
		},
		Storage: StorageConfig{
			UploadDir:                  viper.GetString("STORAGE_UPLOAD_DIR"),
			PublicBaseURL:              strings.TrimRight(viper.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
			Timeout:                    viper.GetDuration("STORAGE_TIMEOUT"),
			MaxUploadBytes:             viper.GetInt64("STORAGE_MAX_UPLOAD_BYTES"),
			BreakerConsecutiveFailures: viper.GetUint32("STORAGE_BREAKER_CONSECUTIVE_FAILURES"),
			BreakerOpenTimeout:         viper.GetDuration("STORAGE_BREAKER_OPEN_TIMEOUT"),
		},
		Catalog: CatalogConfig{
			DefaultPageSize: viper.GetInt("CATALOG_DEFAULT_PAGE_SIZE"),
			MaxPageSize:     viper.GetInt("CATALOG_MAX_PAGE_SIZE"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		RateLimit: RateLimitConfig{
			Enabled:           viper.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerWindow: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:            viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Admin: AdminConfig{
			BootstrapUsername: viper.GetString("ADMIN_BOOTSTRAP_USERNAME"),
			BootstrapPassword: viper.GetString("ADMIN_BOOTSTRAP_PASSWORD"),
			BootstrapEmail:    viper.GetString("ADMIN_BOOTSTRAP_EMAIL"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
