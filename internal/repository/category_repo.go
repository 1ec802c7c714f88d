package repository

import (
	"context"

	"github.com/keilo/catalogd/internal/domain"
	"gorm.io/gorm"
)

// CategoryRepository handles category data operations. The pipeline only
// reads categories; writes come from the surrounding catalog management
// surface.
type CategoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Exists checks whether a category exists in the given store.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store ID.
//   - categoryID: category ID to look up.
// Returns:
//   - bool: true if the category exists in the store.
//   - error: non-nil if the lookup fails.
func (r *CategoryRepository) Exists(ctx context.Context, storeID, categoryID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("store_id = ? AND id = ?", storeID, categoryID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByID retrieves a category by its ID.
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	if err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// NameByID resolves a category ID to its display name. Missing categories
// resolve to "" rather than an error; a product can outlive its category.
func (r *CategoryRepository) NameByID(ctx context.Context, id string) (string, error) {
	var name string
	err := r.db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("id = ?", id).
		Limit(1).
		Pluck("name", &name).Error
	if err != nil {
		return "", err
	}
	return name, nil
}

// ListByStore retrieves all categories owned by a store.
func (r *CategoryRepository) ListByStore(ctx context.Context, storeID string) ([]domain.Category, error) {
	var categories []domain.Category
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("name").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// Create inserts a new category record.
func (r *CategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}
