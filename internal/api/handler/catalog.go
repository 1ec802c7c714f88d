package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/service"
)

// CatalogHandler handles direct catalog read and curation endpoints. Writes
// here go through the same index projection as the import pipeline so the
// index keeps trailing the catalog.
type CatalogHandler struct {
	products   *repository.ProductRepository
	categories *repository.CategoryRepository
	syncer     *service.SyncService
}

// NewCatalogHandler creates a new catalog handler.
// Parameters:
//   - products: repository for catalog entries.
//   - categories: repository for categories.
//   - syncer: index synchronizer, nil to skip projection.
// Returns:
//   - *CatalogHandler: initialized handler.
func NewCatalogHandler(products *repository.ProductRepository, categories *repository.CategoryRepository, syncer *service.SyncService) *CatalogHandler {
	return &CatalogHandler{
		products:   products,
		categories: categories,
		syncer:     syncer,
	}
}

// GetProduct handles GET /api/v1/stores/:store_id/products/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if product.StoreID != c.Param("store_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found in store"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// ListProducts handles GET /api/v1/stores/:store_id/products.
// Requires a category_id filter; unscoped store listings are not offered.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	categoryID := c.Query("category_id")
	if categoryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'category_id' is required"})
		return
	}

	products, err := h.products.ListByCategory(
		c.Request.Context(),
		c.Param("store_id"),
		categoryID,
		intQuery(c, "limit", 50),
		intQuery(c, "offset", 0),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"total":    len(products),
	})
}

// archiveRequest is the body for archive toggling.
type archiveRequest struct {
	Archived bool `json:"archived"`
}

// SetArchived handles PATCH /api/v1/stores/:store_id/products/:id/archive.
// Archiving removes the entry from search without deleting catalog data.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) SetArchived(c *gin.Context) {
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.products.SetArchived(ctx, id, req.Archived); err != nil {
		writeError(c, err)
		return
	}
	h.project(c, id)

	c.JSON(http.StatusOK, gin.H{"id": id, "archived": req.Archived})
}

// DeleteProduct handles DELETE /api/v1/stores/:store_id/products/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.products.Delete(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	if h.syncer != nil {
		if err := h.syncer.Remove(ctx, id); err != nil {
			logger.CtxError(ctx, "Index remove failed, index is stale: product=%s, error=%v", id, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// ListCategories handles GET /api/v1/stores/:store_id/categories.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.categories.ListByStore(c.Request.Context(), c.Param("store_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"total":      len(categories),
	})
}

// createCategoryRequest is the body for category creation.
type createCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateCategory handles POST /api/v1/stores/:store_id/categories.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	category := &domain.Category{
		ID:      uuid.New().String(),
		StoreID: c.Param("store_id"),
		Name:    req.Name,
	}
	if err := h.categories.Create(c.Request.Context(), category); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// project re-syncs one entry into the index after a curation write. Failure
// leaves the index stale, never the catalog.
func (h *CatalogHandler) project(c *gin.Context, productID string) {
	if h.syncer == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.syncer.Upsert(ctx, productID); err != nil {
		logger.CtxError(ctx, "Index upsert failed, index is stale: product=%s, error=%v", productID, err)
	}
}
