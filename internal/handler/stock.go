package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/inventory"
)

// ledger is the interface expected by StockHandler and SalesHandler,
// satisfied by *inventory.Ledger.
type ledger interface {
	UpsertStock(ctx context.Context, in inventory.StockInput) (int, error)
	GetStock(ctx context.Context, name string) (int, error)
	ListStock(ctx context.Context) ([]inventory.StockLevel, error)
	ClearStock(ctx context.Context) (int64, error)
	Sell(ctx context.Context, in inventory.SaleInput) (*inventory.SaleResult, error)
	TotalSales(ctx context.Context) (float64, error)
}

// StockHandler exposes the stock endpoints.
type StockHandler struct {
	ledger ledger
	logger *zap.Logger
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(l ledger, logger *zap.Logger) *StockHandler {
	return &StockHandler{ledger: l, logger: logger}
}

// Register mounts the stock routes on the given router group.
func (h *StockHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/stocks")
	{
		s.POST("", h.Add)
		s.GET("", h.List)
		s.GET("/:name", h.Get)
		s.DELETE("", h.Clear)
	}
}

// Add handles POST /stocks. The decoded payload is echoed back.
func (h *StockHandler) Add(c *gin.Context) {
	payload, err := inventory.DecodePayload(c.Request.Body)
	if err != nil {
		respondError(c, h.logger, "add stock", err)
		return
	}
	in, err := inventory.ValidateStockPayload(payload)
	if err != nil {
		respondError(c, h.logger, "add stock", err)
		return
	}
	if _, err := h.ledger.UpsertStock(c.Request.Context(), in); err != nil {
		respondError(c, h.logger, "add stock", err)
		return
	}

	c.Header("Location", locationFor(c, in.Name))
	c.JSON(http.StatusCreated, payload)
}

// Get handles GET /stocks/:name.
func (h *StockHandler) Get(c *gin.Context) {
	name := c.Param("name")
	amount, err := h.ledger.GetStock(c.Request.Context(), name)
	if err != nil {
		respondError(c, h.logger, "get stock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{name: amount})
}

// List handles GET /stocks. encoding/json writes map keys in byte order,
// which is the order ListStock returns.
func (h *StockHandler) List(c *gin.Context) {
	levels, err := h.ledger.ListStock(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list stock", err)
		return
	}
	out := make(map[string]int, len(levels))
	for _, l := range levels {
		out[l.Name] = l.Amount
	}
	c.JSON(http.StatusOK, out)
}

// Clear handles DELETE /stocks.
func (h *StockHandler) Clear(c *gin.Context) {
	n, err := h.ledger.ClearStock(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "clear stock", err)
		return
	}
	h.logger.Info("stock cleared", zap.Int64("deleted", n))
	c.JSON(http.StatusOK, gin.H{"message": "Stock deleted"})
}

// locationFor returns the path of the named resource under the collection
// the current route serves.
func locationFor(c *gin.Context, name string) string {
	return c.FullPath() + "/" + url.PathEscape(name)
}
