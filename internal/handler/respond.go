package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/inventory"
)

// errorBody is the fixed failure payload. Clients are never told which check
// failed.
var errorBody = gin.H{"message": "ERROR"}

// respondError maps a core error to the fixed failure response. Input and
// business-rule errors are 400; anything else is a store failure and 500.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, inventory.ErrValidation),
		errors.Is(err, inventory.ErrMalformedInput),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, inventory.ErrInsufficientStock):
		logger.Debug(op+" rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody)
	default:
		logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody)
	}
}
