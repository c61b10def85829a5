package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"meat-shop/internal/domain"
	"meat-shop/internal/repository"
	"meat-shop/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateProductInput is the payload for a new catalog entry.
type CreateProductInput struct {
	Code           string              `json:"article" validate:"required,min=3,max=50"`
	Name           string              `json:"name" validate:"required,min=2,max=255"`
	Description    *string             `json:"description" validate:"omitempty,max=2000"`
	Price          decimal.Decimal     `json:"price" validate:"required,gte=0.01,lt=100000000"`
	SalePrice      decimal.NullDecimal `json:"salePrice" validate:"omitempty,gte=0.01,lt=100000000"`
	OnSale         bool                `json:"isOnSale"`
	Quantity       *int                `json:"quantity" validate:"required,gte=0,lte=2147483647"`
	Category       *string             `json:"category" validate:"omitempty,max=100"`
	Weight         decimal.NullDecimal `json:"weight" validate:"omitempty,gte=0.001,lt=100000"`
	ImageReference *string             `json:"imageReference" validate:"omitempty,max=500,http_url"`
}

// UpdateProductInput is a partial patch. Fields left out are untouched; a
// null clears an optional field. The article and the image are not
// patchable.
type UpdateProductInput struct {
	Name        Optional[string]          `json:"name"`
	Description Optional[string]          `json:"description"`
	Price       Optional[decimal.Decimal] `json:"price"`
	SalePrice   Optional[decimal.Decimal] `json:"salePrice"`
	OnSale      Optional[bool]            `json:"isOnSale"`
	Quantity    Optional[int]             `json:"quantity"`
	Category    Optional[string]          `json:"category"`
	Weight      Optional[decimal.Decimal] `json:"weight"`
}

// ImageOutcome tells a caller whether an image change left anything behind.
type ImageOutcome string

const (
	ImageSucceeded           ImageOutcome = "succeeded"
	ImageSucceededWithOrphan ImageOutcome = "succeeded_with_orphan"
)

// ImageResult is returned by a successful attach or detach.
type ImageResult struct {
	Reference string             `json:"reference,omitempty"`
	URL       string             `json:"url,omitempty"`
	Outcome   ImageOutcome       `json:"outcome"`
	Orphan    string             `json:"orphanedReference,omitempty"`
	Product   domain.ProductView `json:"product"`
}

// Recorder receives catalog events worth counting. *metrics.Metrics
// satisfies it.
type Recorder interface {
	OrphanedAsset(operation string)
	CatalogMutation(operation string, err error)
}

type nopRecorder struct{}

func (nopRecorder) OrphanedAsset(string)          {}
func (nopRecorder) CatalogMutation(string, error) {}

// CatalogService defines the product lifecycle operations
type CatalogService interface {
	Create(ctx context.Context, input CreateProductInput) (*domain.ProductView, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProductView, error)
	GetByCode(ctx context.Context, code string) (*domain.ProductView, error)
	ListAll(ctx context.Context) ([]domain.ProductView, error)
	ListPage(ctx context.Context, page, size int) (domain.Page[domain.ProductView], error)
	ListByCategory(ctx context.Context, category string, page, size int) (domain.Page[domain.ProductView], error)
	ListOnSale(ctx context.Context) ([]domain.ProductView, error)
	Update(ctx context.Context, id uuid.UUID, patch UpdateProductInput) (*domain.ProductView, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AttachImage(ctx context.Context, id uuid.UUID, data []byte, contentType string) (*ImageResult, error)
	DetachImage(ctx context.Context, id uuid.UUID) (*ImageResult, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*domain.ProductView, error)
	InStock(ctx context.Context, id uuid.UUID) (bool, error)
}

// CatalogOptions tunes presentation and paging
type CatalogOptions struct {
	PublicBaseURL   string
	DefaultPageSize int
	MaxPageSize     int
}

type catalogService struct {
	repo     repository.ProductRepository
	assets   storage.AssetStore
	recorder Recorder
	logger   *zap.Logger
	opts     CatalogOptions
	now      func() time.Time
}

// NewCatalogService creates a new instance of CatalogService. recorder may be nil.
func NewCatalogService(
	repo repository.ProductRepository,
	assets storage.AssetStore,
	recorder Recorder,
	logger *zap.Logger,
	opts CatalogOptions,
) CatalogService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = min(DefaultPageSize, opts.MaxPageSize)
	}
	return &catalogService{
		repo:     repo,
		assets:   assets,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *catalogService) view(p *domain.Product) *domain.ProductView {
	v := domain.ToView(p, s.opts.PublicBaseURL)
	return &v
}

// Create validates input and stores a new live product
func (s *catalogService) Create(ctx context.Context, input CreateProductInput) (*domain.ProductView, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)

	if err := validateStruct(input); err != nil {
		return nil, err
	}
	// stored values are what the sale rule must hold for
	input.Price = input.Price.Round(2)
	input.SalePrice = roundNull(input.SalePrice, 2)
	if err := checkSaleConsistency(input.OnSale, input.Price, input.SalePrice); err != nil {
		return nil, err
	}

	// fast path for a friendlier error; the partial unique index decides races
	exists, err := s.repo.ExistsByCode(ctx, input.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to check article: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: article %q is already in use", ErrConflict, input.Code)
	}

	now := s.now()
	product := &domain.Product{
		ID:          uuid.New(),
		Code:        input.Code,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		SalePrice:   input.SalePrice,
		OnSale:      input.OnSale,
		Quantity:    *input.Quantity,
		Category:    input.Category,
		Weight:      roundNull(input.Weight, 3),
		ImageRef:    input.ImageReference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.repo.Create(ctx, product)
	s.recorder.CatalogMutation("create", err)
	if err != nil {
		return nil, s.translate(err, "failed to create product")
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("article", product.Code),
	)

	return s.view(product), nil
}

// GetByID returns a live product
func (s *catalogService) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProductView, error) {
	product, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(product), nil
}

// GetByCode returns the live product carrying an article
func (s *catalogService) GetByCode(ctx context.Context, code string) (*domain.ProductView, error) {
	product, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, s.translate(err, "failed to get product by article")
	}
	return s.view(product), nil
}

func (s *catalogService) ListAll(ctx context.Context) ([]domain.ProductView, error) {
	products, err := s.repo.ListAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return domain.ToViews(products, s.opts.PublicBaseURL), nil
}

// ListPage clamps its arguments instead of failing; an out-of-range page is empty.
func (s *catalogService) ListPage(ctx context.Context, page, size int) (domain.Page[domain.ProductView], error) {
	page, size = s.clampPage(page, size)

	products, total, err := s.repo.ListActive(ctx, page, size)
	if err != nil {
		return domain.Page[domain.ProductView]{}, fmt.Errorf("failed to list products: %w", err)
	}

	return domain.NewPage(domain.ToViews(products, s.opts.PublicBaseURL), page, size, total), nil
}

func (s *catalogService) ListByCategory(ctx context.Context, category string, page, size int) (domain.Page[domain.ProductView], error) {
	page, size = s.clampPage(page, size)

	products, total, err := s.repo.ListByCategory(ctx, category, page, size)
	if err != nil {
		return domain.Page[domain.ProductView]{}, fmt.Errorf("failed to list products by category: %w", err)
	}

	return domain.NewPage(domain.ToViews(products, s.opts.PublicBaseURL), page, size, total), nil
}

func (s *catalogService) ListOnSale(ctx context.Context) ([]domain.ProductView, error) {
	products, err := s.repo.ListOnSale(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products on sale: %w", err)
	}
	return domain.ToViews(products, s.opts.PublicBaseURL), nil
}

// Update applies a partial patch to a live product
func (s *catalogService) Update(ctx context.Context, id uuid.UUID, patch UpdateProductInput) (*domain.ProductView, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	product, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := applyPatch(product.Clone(), patch)
	if err := checkSaleConsistency(updated.OnSale, updated.Price, updated.SalePrice); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now()

	stored, err := s.repo.Update(ctx, updated, patchedFields(patch)...)
	s.recorder.CatalogMutation("update", err)
	if err != nil {
		return nil, s.translate(err, "failed to update product")
	}

	s.logger.Info("Product updated", zap.String("product_id", id.String()))

	return s.view(stored), nil
}

// Delete soft-deletes a product. Deleting an already deleted product succeeds
// without further effect; only an unknown id is NotFound.
func (s *catalogService) Delete(ctx context.Context, id uuid.UUID) error {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.translate(err, "failed to get product")
	}
	if product.Deleted {
		s.logger.Debug("Product already deleted", zap.String("product_id", id.String()))
		return nil
	}

	affected, err := s.repo.SoftDelete(ctx, id)
	s.recorder.CatalogMutation("delete", err)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	if affected == 0 {
		s.logger.Debug("Product deleted concurrently", zap.String("product_id", id.String()))
		return nil
	}

	s.logger.Info("Product deleted",
		zap.String("product_id", id.String()),
		zap.String("article", product.Code),
	)
	return nil
}

// AttachImage stores new bytes, points the product at them, then removes
// the image it replaced. Failures after the upload leave the new asset
// orphaned and are reported as *OrphanedAssetError.
func (s *catalogService) AttachImage(ctx context.Context, id uuid.UUID, data []byte, contentType string) (*ImageResult, error) {
	if !isImageType(contentType) {
		return nil, fmt.Errorf("%w: %q is not an image type", ErrUnsupportedMediaType, contentType)
	}
	if len(data) == 0 {
		return nil, invalidField("file", "Image must not be empty")
	}

	// checked before the upload so a bad target never leaves bytes behind
	product, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := product.ImageRef

	ref, err := s.assets.Put(ctx, data, contentType)
	if err != nil {
		s.recorder.CatalogMutation("attach_image", err)
		return nil, s.translate(err, "failed to store image")
	}

	affected, err := s.repo.SwapImageReference(ctx, id, previous, &ref)
	if err == nil && affected == 0 {
		err = s.swapMissReason(ctx, id)
	}
	if err != nil {
		s.recorder.CatalogMutation("attach_image", err)
		s.recorder.OrphanedAsset("attach_image")
		s.logger.Error("Image stored but not attached",
			zap.String("product_id", id.String()),
			zap.String("asset_ref", ref),
			zap.Error(err),
		)
		return nil, &OrphanedAssetError{Ref: ref, Cause: s.translate(err, "failed to attach image")}
	}
	s.recorder.CatalogMutation("attach_image", nil)

	result := &ImageResult{
		Reference: ref,
		URL:       domain.PublicImageURL(&ref, s.opts.PublicBaseURL),
		Outcome:   ImageSucceeded,
	}

	if previous != nil && *previous != "" && *previous != ref {
		if err := s.assets.Delete(ctx, *previous); err != nil {
			s.recorder.OrphanedAsset("replace_image")
			s.logger.Warn("Replaced image could not be removed",
				zap.String("product_id", id.String()),
				zap.String("asset_ref", *previous),
				zap.Error(err),
			)
			result.Outcome = ImageSucceededWithOrphan
			result.Orphan = *previous
		}
	}

	product.ImageRef = &ref
	product.UpdatedAt = s.now()
	result.Product = *s.view(s.reload(ctx, product))

	s.logger.Info("Image attached",
		zap.String("product_id", id.String()),
		zap.String("asset_ref", ref),
		zap.String("outcome", string(result.Outcome)),
	)

	return result, nil
}

// DetachImage removes the stored asset first and only then clears the
// reference, so a failure leaves the record pointing at a file that may
// still exist rather than hiding a file that does.
func (s *catalogService) DetachImage(ctx context.Context, id uuid.UUID) (*ImageResult, error) {
	product, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}

	if !product.HasImage() {
		return &ImageResult{Outcome: ImageSucceeded, Product: *s.view(product)}, nil
	}
	previous := *product.ImageRef

	if err := s.assets.Delete(ctx, previous); err != nil {
		s.recorder.CatalogMutation("detach_image", err)
		return nil, s.translate(err, "failed to delete image")
	}

	affected, err := s.repo.SwapImageReference(ctx, id, &previous, nil)
	if err != nil {
		s.recorder.CatalogMutation("detach_image", err)
		return nil, fmt.Errorf("failed to clear image reference: %w", err)
	}
	if affected == 0 {
		current, err := s.findActive(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.HasImage() {
			err := fmt.Errorf("%w: image changed while detaching", ErrConflict)
			s.recorder.CatalogMutation("detach_image", err)
			return nil, err
		}
		// a concurrent detach already cleared it
		return &ImageResult{Outcome: ImageSucceeded, Product: *s.view(current)}, nil
	}
	s.recorder.CatalogMutation("detach_image", nil)

	product.ImageRef = nil
	product.UpdatedAt = s.now()

	s.logger.Info("Image detached",
		zap.String("product_id", id.String()),
		zap.String("asset_ref", previous),
	)

	return &ImageResult{Outcome: ImageSucceeded, Product: *s.view(s.reload(ctx, product))}, nil
}

// AdjustStock adds delta to the quantity. Results below zero are rejected,
// never clamped.
func (s *catalogService) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*domain.ProductView, error) {
	if delta < math.MinInt32 || delta > math.MaxInt32 {
		return nil, invalidField("delta", "Must fit a 32-bit integer")
	}

	product, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}

	if product.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w: quantity %d cannot absorb delta %d", ErrConflict, product.Quantity, delta)
	}

	affected, err := s.repo.AdjustQuantity(ctx, id, delta)
	s.recorder.CatalogMutation("adjust_stock", err)
	if err != nil {
		return nil, s.translate(err, "failed to adjust stock")
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}

	current, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock adjusted",
		zap.String("product_id", id.String()),
		zap.Int("delta", delta),
		zap.Int("quantity", current.Quantity),
	)

	return s.view(current), nil
}

// InStock reports whether a live product has a positive quantity
func (s *catalogService) InStock(ctx context.Context, id uuid.UUID) (bool, error) {
	inStock, err := s.repo.IsInStock(ctx, id)
	if err != nil {
		return false, s.translate(err, "failed to check stock")
	}
	return inStock, nil
}

func (s *catalogService) findActive(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to get product")
	}
	if product.Deleted {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return product, nil
}

// reload returns the stored record, falling back to the local copy when the
// read fails after a write that already succeeded.
func (s *catalogService) reload(ctx context.Context, fallback *domain.Product) *domain.Product {
	product, err := s.repo.FindByID(ctx, fallback.ID)
	if err != nil {
		s.logger.Warn("Failed to reload product", zap.String("product_id", fallback.ID.String()), zap.Error(err))
		return fallback
	}
	return product
}

// swapMissReason explains why a compare-and-swap touched no row.
func (s *catalogService) swapMissReason(ctx context.Context, id uuid.UUID) error {
	if _, err := s.findActive(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: image changed concurrently", ErrConflict)
}

func (s *catalogService) clampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.opts.DefaultPageSize
	}
	if size > s.opts.MaxPageSize {
		size = s.opts.MaxPageSize
	}
	return page, size
}

// translate maps collaborator errors onto the catalog taxonomy.
func (s *catalogService) translate(err error, msg string) error {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDependencyFailure):
		return err
	case errors.Is(err, repository.ErrProductNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrDuplicateCode):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrNegativeQuantity):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrSaleNotBelowPrice):
		return invalidField("salePrice", "Sale price must be lower than price")
	case errors.Is(err, repository.ErrOutOfRange),
		errors.Is(err, repository.ErrCheckViolation):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, storage.ErrEmptyAsset):
		return invalidField("file", "Image must not be empty")
	case errors.Is(err, storage.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

func isImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// checkSaleConsistency rejects a product on sale without a sale price lower
// than its price.
func checkSaleConsistency(onSale bool, price decimal.Decimal, salePrice decimal.NullDecimal) error {
	if !onSale {
		return nil
	}
	if !salePrice.Valid {
		return invalidField("salePrice", "Sale price is required when the product is on sale")
	}
	if salePrice.Decimal.GreaterThanOrEqual(price) {
		return invalidField("salePrice", "Sale price must be lower than price")
	}
	return nil
}

func validatePatch(p UpdateProductInput) error {
	var errs []*ValidationError

	if p.Name.Set {
		if p.Name.Null {
			errs = append(errs, invalidField("name", "This field is required"))
		} else {
			errs = append(errs, validateField("name", strings.TrimSpace(p.Name.Value), "required,min=2,max=255"))
		}
	}
	if p.Description.HasValue() {
		errs = append(errs, validateField("description", p.Description.Value, "max=2000"))
	}
	if p.Price.Set {
		if p.Price.Null {
			errs = append(errs, invalidField("price", "This field is required"))
		} else {
			errs = append(errs, validateField("price", p.Price.Value, "gte=0.01,lt=100000000"))
		}
	}
	if p.SalePrice.HasValue() {
		errs = append(errs, validateField("salePrice", p.SalePrice.Value, "gte=0.01,lt=100000000"))
	}
	if p.OnSale.Set && p.OnSale.Null {
		errs = append(errs, invalidField("isOnSale", "Must be true or false"))
	}
	if p.Quantity.Set {
		if p.Quantity.Null {
			errs = append(errs, invalidField("quantity", "This field is required"))
		} else {
			errs = append(errs, validateField("quantity", p.Quantity.Value, "gte=0,lte=2147483647"))
		}
	}
	if p.Category.HasValue() {
		errs = append(errs, validateField("category", p.Category.Value, "max=100"))
	}
	if p.Weight.HasValue() {
		errs = append(errs, validateField("weight", p.Weight.Value, "gte=0.001,lt=100000"))
	}

	return mergeValidation(errs...)
}

func applyPatch(p *domain.Product, patch UpdateProductInput) *domain.Product {
	if patch.Name.HasValue() {
		p.Name = strings.TrimSpace(patch.Name.Value)
	}
	if patch.Description.Set {
		p.Description = optionalString(patch.Description)
	}
	if patch.Price.HasValue() {
		p.Price = patch.Price.Value.Round(2)
	}
	if patch.SalePrice.Set {
		p.SalePrice = optionalDecimal(patch.SalePrice, 2)
	}
	if patch.OnSale.HasValue() {
		p.OnSale = patch.OnSale.Value
	}
	if patch.Quantity.HasValue() {
		p.Quantity = patch.Quantity.Value
	}
	if patch.Category.Set {
		p.Category = optionalString(patch.Category)
	}
	if patch.Weight.Set {
		p.Weight = optionalDecimal(patch.Weight, 3)
	}
	return p
}

// patchedFields lists the columns a patch names, nulls included.
func patchedFields(patch UpdateProductInput) []repository.ProductField {
	var fields []repository.ProductField
	add := func(set bool, f repository.ProductField) {
		if set {
			fields = append(fields, f)
		}
	}
	add(patch.Name.Set, repository.FieldName)
	add(patch.Description.Set, repository.FieldDescription)
	add(patch.Price.Set, repository.FieldPrice)
	add(patch.SalePrice.Set, repository.FieldSalePrice)
	add(patch.OnSale.Set, repository.FieldOnSale)
	add(patch.Quantity.Set, repository.FieldQuantity)
	add(patch.Category.Set, repository.FieldCategory)
	add(patch.Weight.Set, repository.FieldWeight)
	return fields
}

func optionalString(o Optional[string]) *string {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

func optionalDecimal(o Optional[decimal.Decimal], places int32) decimal.NullDecimal {
	if o.Null {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(o.Value.Round(places))
}

func roundNull(d decimal.NullDecimal, places int32) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(places))
}
