package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meat-shop/internal/config"
)

const migrationsDir = "../../migrations"

func TestMigrationFilesExist(t *testing.T) {
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		t.Fatal("Migrations directory does not exist")
	}

	expectedMigrations := []string{
		"00001_create_products_table.sql",
		"00002_create_admin_users_table.sql",
		"00003_add_products_sale_check.sql",
	}

	for _, migration := range expectedMigrations {
		path := filepath.Join(migrationsDir, migration)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Migration file %s does not exist", migration)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		content, err := os.ReadFile(filepath.Join(migrationsDir, file.Name()))
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", file.Name(), err)
			continue
		}

		contentStr := string(content)
		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			if !strings.Contains(contentStr, directive) {
				t.Errorf("Migration file %s missing '%s' directive", file.Name(), directive)
			}
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestProductsTableHasRequiredColumns(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(migrationsDir, "00001_create_products_table.sql"))
	if err != nil {
		t.Fatalf("Failed to read products migration: %v", err)
	}

	contentStr := string(content)
	requiredColumns := []string{
		"id UUID PRIMARY KEY",
		"seq BIGINT GENERATED ALWAYS AS IDENTITY",
		"article VARCHAR(50) NOT NULL",
		"name VARCHAR(255) NOT NULL",
		"description TEXT",
		"price DECIMAL",
		"sale_price DECIMAL",
		"is_on_sale BOOLEAN",
		"quantity INTEGER",
		"category VARCHAR(100)",
		"weight DECIMAL",
		"image_url VARCHAR(500)",
		"is_deleted BOOLEAN",
		"created_at TIMESTAMP",
		"updated_at TIMESTAMP",
	}

	for _, column := range requiredColumns {
		if !strings.Contains(contentStr, column) {
			t.Errorf("Products table missing required column definition: %s", column)
		}
	}
}

// The article must only be unique among live rows, so a deleted product's
// code can be reused.
func TestProductsArticleUniqueOnlyAmongActiveRows(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(migrationsDir, "00001_create_products_table.sql"))
	if err != nil {
		t.Fatalf("Failed to read products migration: %v", err)
	}

	contentStr := string(content)

	if !strings.Contains(contentStr, "CREATE UNIQUE INDEX IF NOT EXISTS ux_products_article_active ON products (article) WHERE is_deleted = FALSE") {
		t.Error("Products table missing partial unique index on active articles")
	}
	if strings.Contains(contentStr, "article VARCHAR(50) UNIQUE") {
		t.Error("article must not carry a table-wide UNIQUE constraint")
	}
	if !strings.Contains(contentStr, "CHECK (quantity >= 0)") {
		t.Error("Products table missing non-negative quantity check")
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "shop",
		Password: "secret",
		Database: "catalog",
		Schema:   "meat_shop",
	})

	want := "postgres://shop:secret@db:5432/catalog?sslmode=disable&search_path=meat_shop"
	if dsn != want {
		t.Errorf("DSN mismatch. Expected %s, got %s", want, dsn)
	}
}

func TestProductsSaleCheckConstraint(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(migrationsDir, "00003_add_products_sale_check.sql"))
	if err != nil {
		t.Fatalf("Failed to read sale check migration: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "chk_products_sale_below_price") {
		t.Error("sale check must use the constraint name the repository maps")
	}
	if !strings.Contains(contentStr, "sale_price < price") {
		t.Error("sale price must be strictly lower than price")
	}
}
