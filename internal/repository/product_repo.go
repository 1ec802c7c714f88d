package repository

import (
	"context"
	"fmt"

	"github.com/keilo/catalogd/internal/domain"
	"gorm.io/gorm"
)

// ProductRepository handles catalog entry data operations.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProductRepository: repository instance bound to db.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a new product and its image rows in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - product: product record to persist, Images included.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			return err
		}
		if len(product.Images) == 0 {
			return nil
		}
		return tx.Create(product.Images).Error
	})
}

// Update persists changed product fields. Image rows are not touched here;
// use ReplaceImages for those.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - product: product record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// ReplaceImages swaps a product's image list wholesale. Delete-then-create
// rather than patch: image order is significant and a partial patch cannot
// express reordering safely.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - productID: owning product ID.
//   - images: new image rows in position order.
// Returns:
//   - error: non-nil if the swap fails; the transaction rolls back.
func (r *ProductRepository) ReplaceImages(ctx context.Context, productID string, images []domain.ProductImage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.ProductImage{}, "product_id = ?", productID).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		return tx.Create(images).Error
	})
}

// GetByID retrieves a product by its ID, images included.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.loadImages(ctx, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetByStoreName retrieves a product by its (store, name) natural key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store ID.
//   - name: product name, case-sensitive as stored.
// Returns:
//   - *domain.Product: product record with images if found.
//   - error: gorm.ErrRecordNotFound if absent, other errors on failure.
func (r *ProductRepository) GetByStoreName(ctx context.Context, storeID, name string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "store_id = ? AND name = ?", storeID, name).Error; err != nil {
		return nil, err
	}
	if err := r.loadImages(ctx, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetByIDs retrieves products by a list of IDs. Images are not loaded.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	var products []domain.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get products by IDs: %w", err)
	}
	return products, nil
}

// ListByCategory retrieves non-archived products for a store with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store ID.
//   - categoryID: category to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Product: matching product records.
//   - error: non-nil if the query fails.
func (r *ProductRepository) ListByCategory(ctx context.Context, storeID, categoryID string, limit, offset int) ([]domain.Product, error) {
	var products []domain.Product
	query := r.db.WithContext(ctx).Where("store_id = ? AND archived = ?", storeID, false)
	if categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if err := query.
		Limit(limit).
		Offset(offset).
		Order("updated_at DESC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ListBatch pages through a store-agnostic slice of non-archived products,
// images included. Used by full index rebuilds.
func (r *ProductRepository) ListBatch(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	var products []domain.Product
	if err := r.db.WithContext(ctx).
		Where("archived = ?", false).
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		if err := r.loadImages(ctx, &products[i]); err != nil {
			return nil, err
		}
	}
	return products, nil
}

// SearchFallback is the degraded search path used when the index service is
// unreachable: a direct substring match against the primary store's text
// columns, ranked only by recency.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store ID.
//   - query: raw user query, matched as a substring.
//   - categoryID: optional category filter; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Product: matching product records, newest first.
//   - error: non-nil if the query fails.
func (r *ProductRepository) SearchFallback(ctx context.Context, storeID, query, categoryID string, limit, offset int) ([]domain.Product, error) {
	pattern := "%" + query + "%"
	q := r.db.WithContext(ctx).
		Where("store_id = ? AND archived = ?", storeID, false).
		Where("name LIKE ? OR description LIKE ? OR keywords LIKE ?", pattern, pattern, pattern)
	if categoryID != "" {
		q = q.Where("category_id = ?", categoryID)
	}
	var products []domain.Product
	if err := q.
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// SuggestNames returns non-archived product names starting with prefix,
// the fallback path for autocomplete.
func (r *ProductRepository) SuggestNames(ctx context.Context, storeID, prefix string, limit int) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("store_id = ? AND archived = ? AND name LIKE ?", storeID, false, prefix+"%").
		Order("popularity DESC").
		Limit(limit).
		Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// SetArchived flips a product's archive (soft-hide) flag.
func (r *ProductRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", id).
		Update("archived", archived)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete hard-deletes a product and its image rows.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.ProductImage{}, "product_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Product{}, "id = ?", id).Error
	})
}

// CountByStore counts non-archived products in a store.
func (r *ProductRepository) CountByStore(ctx context.Context, storeID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("store_id = ? AND archived = ?", storeID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProductRepository) loadImages(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).
		Where("product_id = ?", product.ID).
		Order("position").
		Find(&product.Images).Error
}
