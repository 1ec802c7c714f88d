package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/service"
)

// AdminHandler handles operational endpoints.
type AdminHandler struct {
	syncer *service.SyncService
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - syncer: index synchronizer.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(syncer *service.SyncService) *AdminHandler {
	return &AdminHandler{syncer: syncer}
}

// RebuildIndex handles POST /api/v1/admin/index/rebuild.
//
// The rebuild runs in the background on a detached context; the live index
// keeps serving until the staged collection is promoted. Responds 202.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) RebuildIndex(c *gin.Context) {
	ctx := logger.FromContext(c.Request.Context()).WithContext(context.Background())
	ctx = logger.SetComponent(ctx, "rebuild")

	go func() {
		if _, err := h.syncer.RebuildAll(ctx); err != nil {
			logger.CtxError(ctx, "Index rebuild failed, live index untouched: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "rebuild started"})
}
