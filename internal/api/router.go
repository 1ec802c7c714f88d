package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/keilo/catalogd/internal/api/handler"
	"github.com/keilo/catalogd/internal/api/middleware"
	"github.com/keilo/catalogd/internal/config"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/service"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	DB         *gorm.DB
	Products   *repository.ProductRepository
	Categories *repository.CategoryRepository
	Imports    *service.ImportService
	Search     *service.SearchService
	Syncer     *service.SyncService
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, serverCfg config.ServerConfig) *gin.Engine {
	// Set Gin mode
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(serverCfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.DB)
	importHandler := handler.NewImportHandler(deps.Imports)
	searchHandler := handler.NewSearchHandler(deps.Search)
	catalogHandler := handler.NewCatalogHandler(deps.Products, deps.Categories, deps.Syncer)
	adminHandler := handler.NewAdminHandler(deps.Syncer)

	// Health checks
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// API v1 routes, scoped per store
	v1 := r.Group("/api/v1")
	{
		stores := v1.Group("/stores/:store_id")
		{
			// Bulk import
			stores.POST("/imports", importHandler.Submit)
			stores.GET("/imports/:job_id", importHandler.Status)
			stores.POST("/imports/:job_id/abort", importHandler.Abort)

			// Search
			stores.GET("/search", searchHandler.Search)
			stores.GET("/search/suggest", searchHandler.Autocomplete)

			// Catalog
			stores.GET("/products", catalogHandler.ListProducts)
			stores.GET("/products/:id", catalogHandler.GetProduct)
			stores.PATCH("/products/:id/archive", catalogHandler.SetArchived)
			stores.DELETE("/products/:id", catalogHandler.DeleteProduct)
			stores.GET("/categories", catalogHandler.ListCategories)
			stores.POST("/categories", catalogHandler.CreateCategory)
		}

		// Operational endpoints
		admin := v1.Group("/admin")
		{
			admin.POST("/index/rebuild", adminHandler.RebuildIndex)
		}
	}

	return r
}
