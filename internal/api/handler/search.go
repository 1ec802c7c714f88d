package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/keilo/catalogd/internal/service"
)

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - search: query gateway service.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search handles GET /api/v1/stores/:store_id/search.
//
// Query parameters: q (free text), category_id (optional filter), limit,
// offset. The response carries a degraded flag when results came from the
// database fallback instead of the index.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}

	result, err := h.search.Search(
		c.Request.Context(),
		c.Param("store_id"),
		query,
		c.Query("category_id"),
		intQuery(c, "limit", 20),
		intQuery(c, "offset", 0),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Autocomplete handles GET /api/v1/stores/:store_id/search/suggest.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Autocomplete(c *gin.Context) {
	names, err := h.search.Autocomplete(
		c.Request.Context(),
		c.Param("store_id"),
		c.Query("q"),
		intQuery(c, "limit", 10),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": names,
		"total":       len(names),
	})
}

// intQuery parses an integer query parameter with a fallback.
func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
