package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meat-shop/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrAdminNotFound      = errors.New("admin not found")
	ErrAdminAlreadyExists = errors.New("admin with this username or email already exists")
)

// AdminRepository defines the interface for admin account data access
type AdminRepository interface {
	Create(ctx context.Context, admin *domain.Admin) error
	FindByUsername(ctx context.Context, username string) (*domain.Admin, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error)
	Count(ctx context.Context) (int, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type adminRepository struct {
	db *sql.DB
}

// NewAdminRepository creates a new instance of AdminRepository
func NewAdminRepository(db *sql.DB) AdminRepository {
	return &adminRepository{db: db}
}

const adminColumns = `id, username, email, password_hash, COALESCE(full_name, ''), role, is_active, created_at, last_login`

func scanAdmin(row rowScanner) (*domain.Admin, error) {
	admin := &domain.Admin{}
	err := row.Scan(
		&admin.ID,
		&admin.Username,
		&admin.Email,
		&admin.PasswordHash,
		&admin.FullName,
		&admin.Role,
		&admin.IsActive,
		&admin.CreatedAt,
		&admin.LastLogin,
	)
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// Create inserts a new admin using parameterized queries
func (r *adminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	query := `
		INSERT INTO admin_users (id, username, email, password_hash, full_name, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		admin.ID,
		admin.Username,
		admin.Email,
		admin.PasswordHash,
		admin.FullName,
		admin.Role,
		admin.IsActive,
		admin.CreatedAt,
	)

	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrAdminAlreadyExists
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}

	return nil
}

// FindByUsername retrieves an admin by username
func (r *adminRepository) FindByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE username = $1`

	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to find admin by username: %w", err)
	}

	return admin, nil
}

// FindByID retrieves an admin by ID
func (r *adminRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1`

	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to find admin by ID: %w", err)
	}

	return admin, nil
}

func (r *adminRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

func (r *adminRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE admin_users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrAdminNotFound
	}

	return nil
}
