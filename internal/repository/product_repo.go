package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/pkg/apperr"
)

// ProductRepository product repository interface
type ProductRepository interface {
	// Create product
	Create(ctx context.Context, product *model.Product) error

	// Get product by ID
	GetByID(ctx context.Context, id uint64) (*model.Product, error)

	// Get products by IDs, preserving no particular order
	ListByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error)

	// Reserve stock (atomic decrement with floor check), returns remaining quantity
	ReserveStock(ctx context.Context, id uint64, qty int) (int, error)

	// Restore stock (atomic increment); at-most-once semantics are the caller's
	// responsibility
	RestoreStock(ctx context.Context, id uint64, qty int) error

	// List products
	List(ctx context.Context, page, pageSize int, activeOnly bool) ([]*model.Product, int64, error)
}

// productRepository product repository implementation
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create creates a product
func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return apperr.Database(err)
	}
	return nil
}

// GetByID gets a product by ID
func (r *productRepository) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product not found").WithDetail("product_id", id)
		}
		return nil, apperr.Database(err)
	}
	return &product, nil
}

// ListByIDs gets products by IDs
func (r *productRepository) ListByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error) {
	var products []*model.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return products, nil
}

// ReserveStock atomically decrements stock. The floor check and the decrement
// are one conditional UPDATE, not a read followed by a write, so concurrent
// reservations for the same product cannot drive the quantity negative.
func (r *productRepository) ReserveStock(ctx context.Context, id uint64, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validationf("reserve quantity must be positive, got %d", qty)
	}

	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND is_active = ? AND quantity_available >= ?", id, true, qty).
		Updates(map[string]interface{}{
			"quantity_available": gorm.Expr("quantity_available - ?", qty),
			"sales":              gorm.Expr("sales + ?", qty),
		})

	if result.Error != nil {
		return 0, apperr.Database(result.Error)
	}

	if result.RowsAffected == 0 {
		// Re-read only to report how much was actually available
		product, err := r.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if !product.IsActive {
			return 0, apperr.Validationf("product %d is not active", id)
		}
		return 0, apperr.InsufficientStock(id, qty, product.QuantityAvailable)
	}

	var remaining int
	if err := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Select("quantity_available").
		Scan(&remaining).Error; err != nil {
		return 0, apperr.Database(err)
	}

	return remaining, nil
}

// RestoreStock atomically increments stock
func (r *productRepository) RestoreStock(ctx context.Context, id uint64, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("restore quantity must be positive, got %d", qty)
	}

	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quantity_available": gorm.Expr("quantity_available + ?", qty),
			"sales":              gorm.Expr("sales - ?", qty),
		})

	if result.Error != nil {
		return apperr.Database(result.Error)
	}

	if result.RowsAffected == 0 {
		return apperr.NotFound("product not found").WithDetail("product_id", id)
	}

	return nil
}

// List lists products
func (r *productRepository) List(ctx context.Context, page, pageSize int, activeOnly bool) ([]*model.Product, int64, error) {
	var products []*model.Product
	var total int64

	offset := (page - 1) * pageSize

	db := r.db.WithContext(ctx).Model(&model.Product{})
	if activeOnly {
		db = db.Where("is_active = ?", true)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, apperr.Database(err)
	}

	err := db.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&products).Error
	if err != nil {
		return nil, 0, apperr.Database(err)
	}

	return products, total, nil
}
