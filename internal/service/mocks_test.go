package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"meat-shop/internal/domain"
	"meat-shop/internal/repository"
	"meat-shop/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// mockProductRepository keeps products in memory and mirrors the storage
// guarantees the service relies on: partial uniqueness, atomic deltas with a
// non-negative check, and compare-and-swap on the image column.
type mockProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	order    []uuid.UUID

	swapErr   error
	updateErr error
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if !p.Deleted && p.Code == product.Code {
			return repository.ErrDuplicateCode
		}
	}
	m.products[product.ID] = product.Clone()
	m.order = append(m.order, product.ID)
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product, fields ...repository.ProductField) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	stored, ok := m.products[product.ID]
	if !ok || stored.Deleted {
		return nil, repository.ErrProductNotFound
	}

	next := stored.Clone()
	for _, f := range fields {
		switch f {
		case repository.FieldName:
			next.Name = product.Name
		case repository.FieldDescription:
			next.Description = product.Description
		case repository.FieldPrice:
			next.Price = product.Price
		case repository.FieldSalePrice:
			next.SalePrice = product.SalePrice
		case repository.FieldOnSale:
			next.OnSale = product.OnSale
		case repository.FieldQuantity:
			next.Quantity = product.Quantity
		case repository.FieldCategory:
			next.Category = product.Category
		case repository.FieldWeight:
			next.Weight = product.Weight
		}
	}
	if next.Quantity < 0 {
		return nil, repository.ErrNegativeQuantity
	}
	if next.OnSale && (!next.SalePrice.Valid || next.SalePrice.Decimal.GreaterThanOrEqual(next.Price)) {
		return nil, repository.ErrSaleNotBelowPrice
	}
	next.UpdatedAt = product.UpdatedAt
	m.products[product.ID] = next
	return next.Clone(), nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p.Clone(), nil
}

func (m *mockProductRepository) FindByCode(ctx context.Context, code string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if !p.Deleted && p.Code == code {
			return p.Clone(), nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := m.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrProductNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *mockProductRepository) active(filter func(*domain.Product) bool) []*domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Product{}
	for _, id := range m.order {
		p := m.products[id]
		if !p.Deleted && (filter == nil || filter(p)) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func paginate(all []*domain.Product, page, pageSize int) ([]*domain.Product, int) {
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []*domain.Product{}, len(all)
	}
	end := min(start+pageSize, len(all))
	return all[start:end], len(all)
}

func (m *mockProductRepository) ListAllActive(ctx context.Context) ([]*domain.Product, error) {
	return m.active(nil), nil
}

func (m *mockProductRepository) ListActive(ctx context.Context, page, pageSize int) ([]*domain.Product, int, error) {
	items, total := paginate(m.active(nil), page, pageSize)
	return items, total, nil
}

func (m *mockProductRepository) ListByCategory(ctx context.Context, category string, page, pageSize int) ([]*domain.Product, int, error) {
	items, total := paginate(m.active(func(p *domain.Product) bool {
		return p.Category != nil && *p.Category == category
	}), page, pageSize)
	return items, total, nil
}

func (m *mockProductRepository) ListOnSale(ctx context.Context) ([]*domain.Product, error) {
	return m.active(func(p *domain.Product) bool { return p.OnSale }), nil
}

func (m *mockProductRepository) SoftDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Deleted {
		return 0, nil
	}
	p.Deleted = true
	p.UpdatedAt = time.Now()
	return 1, nil
}

func (m *mockProductRepository) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Deleted {
		return 0, nil
	}
	if p.Quantity+delta < 0 {
		return 0, repository.ErrNegativeQuantity
	}
	p.Quantity += delta
	p.UpdatedAt = time.Now()
	return 1, nil
}

func (m *mockProductRepository) IsInStock(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Deleted {
		return false, repository.ErrProductNotFound
	}
	return p.Quantity > 0, nil
}

func (m *mockProductRepository) SwapImageReference(ctx context.Context, id uuid.UUID, expected, next *string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.swapErr != nil {
		return 0, m.swapErr
	}
	p, ok := m.products[id]
	if !ok || p.Deleted {
		return 0, nil
	}
	if !sameRef(p.ImageRef, expected) {
		return 0, nil
	}
	if next == nil {
		p.ImageRef = nil
	} else {
		v := *next
		p.ImageRef = &v
	}
	p.UpdatedAt = time.Now()
	return 1, nil
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// setImage bypasses the service to simulate another writer.
func (m *mockProductRepository) setImage(id uuid.UUID, ref *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].ImageRef = ref
}

// flakyAssetStore wraps a real store and fails selected operations.
type flakyAssetStore struct {
	storage.AssetStore
	putErr    error
	deleteErr error
	puts      int
}

func (f *flakyAssetStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	f.puts++
	if f.putErr != nil {
		return "", f.putErr
	}
	return f.AssetStore.Put(ctx, data, contentType)
}

func (f *flakyAssetStore) Delete(ctx context.Context, ref string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.AssetStore.Delete(ctx, ref)
}

type countingRecorder struct {
	mu        sync.Mutex
	orphans   map[string]int
	mutations map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{orphans: map[string]int{}, mutations: map[string]int{}}
}

func (r *countingRecorder) OrphanedAsset(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans[op]++
}

func (r *countingRecorder) CatalogMutation(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.mutations[op]++
	}
}

type catalogFixture struct {
	repo     *mockProductRepository
	fs       afero.Fs
	assets   *flakyAssetStore
	recorder *countingRecorder
	svc      CatalogService
}

const testBaseURL = "https://shop.example.com"

func newCatalogFixture() *catalogFixture {
	repo := newMockProductRepository()
	fs := afero.NewMemMapFs()
	assets := &flakyAssetStore{AssetStore: storage.NewLocalStoreFs(fs, zap.NewNop())}
	recorder := newCountingRecorder()
	svc := NewCatalogService(repo, assets, recorder, zap.NewNop(), CatalogOptions{
		PublicBaseURL:   testBaseURL,
		DefaultPageSize: 20,
		MaxPageSize:     100,
	})
	return &catalogFixture{repo: repo, fs: fs, assets: assets, recorder: recorder, svc: svc}
}

func (f *catalogFixture) assetExists(ref string) bool {
	name, ok := storage.NameFromRef(ref)
	if !ok {
		return false
	}
	exists, _ := afero.Exists(f.fs, name)
	return exists
}

// mockAdminRepository mirrors the admin table in memory
type mockAdminRepository struct {
	mu     sync.Mutex
	admins map[string]*domain.Admin
}

func newMockAdminRepository() *mockAdminRepository {
	return &mockAdminRepository{admins: make(map[string]*domain.Admin)}
}

func (m *mockAdminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.admins[admin.Username]; exists {
		return repository.ErrAdminAlreadyExists
	}
	a := *admin
	m.admins[admin.Username] = &a
	return nil
}

func (m *mockAdminRepository) FindByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	admin, exists := m.admins[username]
	if !exists {
		return nil, repository.ErrAdminNotFound
	}
	a := *admin
	return &a, nil
}

func (m *mockAdminRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, admin := range m.admins {
		if admin.ID == id {
			a := *admin
			return &a, nil
		}
	}
	return nil, repository.ErrAdminNotFound
}

func (m *mockAdminRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.admins), nil
}

func (m *mockAdminRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, admin := range m.admins {
		if admin.ID == id {
			admin.LastLogin = &at
			return nil
		}
	}
	return repository.ErrAdminNotFound
}

// racingRepo runs before ahead of every image swap to simulate a writer
// that lands between the service's read and its compare-and-swap.
type racingRepo struct {
	*mockProductRepository
	before func()
}

func (r *racingRepo) SwapImageReference(ctx context.Context, id uuid.UUID, expected, next *string) (int64, error) {
	r.before()
	return r.mockProductRepository.SwapImageReference(ctx, id, expected, next)
}

// interleavingRepo runs between once, right after the first FindByID, to
// simulate a writer that commits between a read and the write built on it.
type interleavingRepo struct {
	*mockProductRepository
	between func()
	fired   bool
}

func (r *interleavingRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, err := r.mockProductRepository.FindByID(ctx, id)
	if !r.fired && r.between != nil {
		r.fired = true
		r.between()
	}
	return p, err
}
