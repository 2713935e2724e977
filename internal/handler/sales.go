package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/inventory"
)

// SalesHandler exposes the sale endpoints.
type SalesHandler struct {
	ledger ledger
	logger *zap.Logger
}

// NewSalesHandler creates a new SalesHandler.
func NewSalesHandler(l ledger, logger *zap.Logger) *SalesHandler {
	return &SalesHandler{ledger: l, logger: logger}
}

// Register mounts the sale routes on the given router group.
func (h *SalesHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/sales")
	{
		s.POST("", h.Sell)
		s.GET("", h.Total)
	}
}

// Sell handles POST /sales. The decoded payload is echoed back.
func (h *SalesHandler) Sell(c *gin.Context) {
	payload, err := inventory.DecodePayload(c.Request.Body)
	if err != nil {
		respondError(c, h.logger, "sell", err)
		return
	}
	in, err := inventory.ValidateSalePayload(payload)
	if err != nil {
		respondError(c, h.logger, "sell", err)
		return
	}
	res, err := h.ledger.Sell(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "sell", err)
		return
	}
	RecordSale(res.Value)

	c.Header("Location", locationFor(c, in.Name))
	c.JSON(http.StatusOK, payload)
}

// Total handles GET /sales.
func (h *SalesHandler) Total(c *gin.Context) {
	total, err := h.ledger.TotalSales(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "total sales", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": roundCents(total)})
}

// roundCents rounds v to two decimals, ties to even on the exact binary value.
func roundCents(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
