package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"meat-shop/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrDuplicateCode     = errors.New("product with this article already exists")
	ErrNegativeQuantity  = errors.New("quantity would become negative")
	ErrCheckViolation    = errors.New("product violates a table constraint")
	ErrSaleNotBelowPrice = errors.New("sale price must be lower than price")
	ErrOutOfRange        = errors.New("numeric value out of range")
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgOutOfRange      = "22003"

	quantityCheckConstraint = "chk_products_quantity_non_negative"
	saleCheckConstraint     = "chk_products_sale_below_price"
)

// ProductRepository defines the interface for product data access.
// Every lookup except FindByID ignores soft-deleted rows.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product, fields ...ProductField) (*domain.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByCode(ctx context.Context, code string) (*domain.Product, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	ListAllActive(ctx context.Context) ([]*domain.Product, error)
	ListActive(ctx context.Context, page, pageSize int) ([]*domain.Product, int, error)
	ListByCategory(ctx context.Context, category string, page, pageSize int) ([]*domain.Product, int, error)
	ListOnSale(ctx context.Context) ([]*domain.Product, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (int64, error)
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (int64, error)
	IsInStock(ctx context.Context, id uuid.UUID) (bool, error)
	SwapImageReference(ctx context.Context, id uuid.UUID, expected, next *string) (int64, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, article, name, description, price, sale_price, is_on_sale, quantity,
	category, weight, image_url, is_deleted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Code,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.SalePrice,
		&product.OnSale,
		&product.Quantity,
		&product.Category,
		&product.Weight,
		&product.ImageRef,
		&product.Deleted,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// checkViolation maps a CHECK failure to the matching sentinel, or nil if
// err is something else.
func checkViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgCheckViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case quantityCheckConstraint:
		return ErrNegativeQuantity
	case saleCheckConstraint:
		return ErrSaleNotBelowPrice
	}
	return fmt.Errorf("%w: %s", ErrCheckViolation, pgErr.ConstraintName)
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, article, name, description, price, sale_price, is_on_sale, quantity,
		                      category, weight, image_url, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Code,
		product.Name,
		product.Description,
		product.Price,
		product.SalePrice,
		product.OnSale,
		product.Quantity,
		product.Category,
		product.Weight,
		product.ImageRef,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrDuplicateCode
		case pgOutOfRange:
			return ErrOutOfRange
		}
		if checkErr := checkViolation(err); checkErr != nil {
			return checkErr
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// ProductField names a mutable column Update may write.
type ProductField string

const (
	FieldName        ProductField = "name"
	FieldDescription ProductField = "description"
	FieldPrice       ProductField = "price"
	FieldSalePrice   ProductField = "sale_price"
	FieldOnSale      ProductField = "is_on_sale"
	FieldQuantity    ProductField = "quantity"
	FieldCategory    ProductField = "category"
	FieldWeight      ProductField = "weight"
)

func (f ProductField) value(p *domain.Product) (any, error) {
	switch f {
	case FieldName:
		return p.Name, nil
	case FieldDescription:
		return p.Description, nil
	case FieldPrice:
		return p.Price, nil
	case FieldSalePrice:
		return p.SalePrice, nil
	case FieldOnSale:
		return p.OnSale, nil
	case FieldQuantity:
		return p.Quantity, nil
	case FieldCategory:
		return p.Category, nil
	case FieldWeight:
		return p.Weight, nil
	default:
		return nil, fmt.Errorf("unknown product field %q", string(f))
	}
}

// Update writes only the named columns of a live product and returns the
// stored row. Columns left out keep whatever is in the table, so a
// concurrent AdjustQuantity survives an update that never names quantity.
func (r *productRepository) Update(ctx context.Context, product *domain.Product, fields ...ProductField) (*domain.Product, error) {
	set := make([]string, 0, len(fields)+1)
	args := []any{product.ID}
	seen := make(map[ProductField]bool, len(fields))

	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		v, err := f.value(product)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", f, len(args)))
	}
	args = append(args, product.UpdatedAt)
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))

	query := `UPDATE products SET ` + strings.Join(set, ", ") + `
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING ` + productColumns

	stored, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if checkErr := checkViolation(err); checkErr != nil {
			return nil, checkErr
		}
		if pgErrorCode(err) == pgOutOfRange {
			return nil, ErrOutOfRange
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return stored, nil
}

// FindByID retrieves a product by ID, including soft-deleted ones
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// FindByCode retrieves the live product carrying the given article
func (r *productRepository) FindByCode(ctx context.Context, code string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE article = $1 AND is_deleted = FALSE`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by article: %w", err)
	}

	return product, nil
}

func (r *productRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM products WHERE article = $1 AND is_deleted = FALSE)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check article: %w", err)
	}

	return exists, nil
}

// ListAllActive returns every live product in insertion order
func (r *productRepository) ListAllActive(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE is_deleted = FALSE ORDER BY seq`
	return r.queryProducts(ctx, query)
}

// ListActive returns one page of live products in insertion order plus the total count
func (r *productRepository) ListActive(ctx context.Context, page, pageSize int) ([]*domain.Product, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE is_deleted = FALSE`).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE is_deleted = FALSE
		ORDER BY seq
		LIMIT $1 OFFSET $2`

	products, err := r.queryProducts(ctx, query, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// ListByCategory pages through live products with an exactly matching category
func (r *productRepository) ListByCategory(ctx context.Context, category string, page, pageSize int) ([]*domain.Product, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE category = $1 AND is_deleted = FALSE`, category,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products in category: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE category = $1 AND is_deleted = FALSE
		ORDER BY seq
		LIMIT $2 OFFSET $3`

	products, err := r.queryProducts(ctx, query, category, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *productRepository) ListOnSale(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE is_on_sale = TRUE AND is_deleted = FALSE
		ORDER BY seq`
	return r.queryProducts(ctx, query)
}

// SoftDelete marks a live product deleted and reports how many rows changed
func (r *productRepository) SoftDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	query := `
		UPDATE products
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// AdjustQuantity applies delta in a single statement. The table check
// rejects any result below zero.
func (r *productRepository) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (int64, error) {
	query := `
		UPDATE products
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		if checkErr := checkViolation(err); checkErr != nil {
			return 0, checkErr
		}
		if pgErrorCode(err) == pgOutOfRange {
			return 0, ErrOutOfRange
		}
		return 0, fmt.Errorf("failed to adjust quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// IsInStock reports whether a live product has any quantity left
func (r *productRepository) IsInStock(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT quantity > 0 FROM products WHERE id = $1 AND is_deleted = FALSE`

	var inStock bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&inStock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrProductNotFound
		}
		return false, fmt.Errorf("failed to check stock: %w", err)
	}

	return inStock, nil
}

// SwapImageReference sets image_url to next only if it still equals
// expected. Zero rows affected means another writer got there first or the
// product is gone.
func (r *productRepository) SwapImageReference(ctx context.Context, id uuid.UUID, expected, next *string) (int64, error) {
	query := `
		UPDATE products
		SET image_url = $3, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE AND image_url IS NOT DISTINCT FROM $2
	`

	result, err := r.db.ExecContext(ctx, query, id, expected, next)
	if err != nil {
		return 0, fmt.Errorf("failed to swap image reference: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func (r *productRepository) queryProducts(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}
