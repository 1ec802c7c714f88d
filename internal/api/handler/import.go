package handler

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keilo/catalogd/internal/feed"
	"github.com/keilo/catalogd/internal/pipeline"
	"github.com/keilo/catalogd/internal/service"
)

// maxFeedBytes caps uploaded feed files.
const maxFeedBytes = 32 << 20

// ImportHandler handles feed submission and job tracking endpoints.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler creates a new import handler.
// Parameters:
//   - imports: import orchestration service.
// Returns:
//   - *ImportHandler: initialized handler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// submitRequest is the JSON body for inline submissions.
type submitRequest struct {
	ActorID string            `json:"actor_id"`
	Rows    []pipeline.RawRow `json:"rows" binding:"required"`
}

// Submit handles POST /api/v1/stores/:store_id/imports.
//
// Two content types are accepted: application/json with an inline rows array,
// or multipart/form-data with a "feed" file (CSV, XLSX, or JSON) and an
// optional "actor_id" field. Responds 202: the job is accepted and processed
// asynchronously.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) Submit(c *gin.Context) {
	storeID := c.Param("store_id")

	var (
		raws    []pipeline.RawRow
		rawFeed []byte
		format  feed.Format
		actorID string
		err     error
	)

	if c.ContentType() == "multipart/form-data" {
		raws, rawFeed, format, actorID, err = h.readFeedUpload(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed upload: " + err.Error()})
			return
		}
	} else {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		raws = req.Rows
		actorID = req.ActorID
		format = feed.FormatJSON
	}

	if len(raws) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Feed contains no rows"})
		return
	}

	result, err := h.imports.Submit(c.Request.Context(), storeID, actorID, raws, rawFeed, format)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// readFeedUpload decodes a multipart feed file into raw rows, returning the
// raw bytes for archival alongside.
func (h *ImportHandler) readFeedUpload(c *gin.Context) ([]pipeline.RawRow, []byte, feed.Format, string, error) {
	file, header, err := c.Request.FormFile("feed")
	if err != nil {
		return nil, nil, "", "", err
	}
	defer file.Close()

	format, err := feed.DetectFormat(header.Filename)
	if err != nil {
		return nil, nil, "", "", err
	}

	rawFeed, err := io.ReadAll(io.LimitReader(file, maxFeedBytes))
	if err != nil {
		return nil, nil, "", "", err
	}

	raws, err := feed.Decode(bytes.NewReader(rawFeed), format)
	if err != nil {
		return nil, nil, "", "", err
	}

	return raws, rawFeed, format, c.PostForm("actor_id"), nil
}

// Status handles GET /api/v1/stores/:store_id/imports/:job_id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) Status(c *gin.Context) {
	view, err := h.imports.Status(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if view.StoreID != c.Param("store_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found in store"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Abort handles POST /api/v1/stores/:store_id/imports/:job_id/abort.
// Chunks already on the queue run to completion; only further dispatch stops.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) Abort(c *gin.Context) {
	if err := h.imports.Abort(c.Request.Context(), c.Param("job_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "abort requested"})
}
