package inventory

import (
	"time"

	"github.com/google/uuid"
)

// TotalSalesKey is the Aggregate key holding the cumulative sales value.
const TotalSalesKey = "total_sales"

// Good is a stock-keeping record. Amount is never negative.
type Good struct {
	ID        uuid.UUID
	Name      string
	Amount    int
	Price     *float64 // informational, never required
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Aggregate is a key/value accumulator. Value is a decimal string.
type Aggregate struct {
	Key   string
	Value string
}

// StockLevel is one row of a stock listing.
type StockLevel struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// StockInput is a validated stock-add request.
type StockInput struct {
	Name   string
	Amount int
}

// SaleInput is a validated sale request.
type SaleInput struct {
	Name   string
	Amount int
	Price  float64
}

// SaleResult describes a committed sale.
type SaleResult struct {
	Name      string
	Remaining int
	Value     float64
}
