package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/keilo/catalogd/internal/domain"
)

// writeError maps pipeline error kinds and storage errors onto HTTP status
// codes with a uniform JSON body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
	case domain.IsKind(err, domain.KindValidation):
		status = http.StatusBadRequest
	case domain.IsKind(err, domain.KindReference):
		status = http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.KindConflict):
		status = http.StatusConflict
	case domain.IsKind(err, domain.KindState):
		status = http.StatusConflict
	case domain.IsKind(err, domain.KindTransport):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
