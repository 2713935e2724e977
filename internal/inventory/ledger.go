package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger applies validated stock and sale operations to a Store.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

// NewLedger creates a Ledger writing to store.
func NewLedger(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// update runs fn in a write transaction, retrying once if it lost a race.
// fn must not keep state between attempts.
func (l *Ledger) update(ctx context.Context, op string, fn func(Tx) error) error {
	err := l.store.Update(ctx, fn)
	if errors.Is(err, ErrConflict) {
		l.logger.Debug("retrying after conflict", zap.String("op", op), zap.Error(err))
		err = l.store.Update(ctx, fn)
	}
	return err
}

// UpsertStock adds in.Amount to the named good, creating it if needed, and
// returns the resulting amount.
func (l *Ledger) UpsertStock(ctx context.Context, in StockInput) (int, error) {
	var amount int
	err := l.update(ctx, "upsert_stock", func(tx Tx) error {
		g, err := tx.GoodForUpdate(ctx, in.Name)
		switch {
		case errors.Is(err, ErrNotFound):
			now := time.Now().UTC()
			amount = in.Amount
			return tx.InsertGood(ctx, &Good{
				ID:        uuid.New(),
				Name:      in.Name,
				Amount:    in.Amount,
				CreatedAt: now,
				UpdatedAt: now,
			})
		case err != nil:
			return err
		}
		if in.Amount > math.MaxInt-g.Amount {
			return fmt.Errorf("%w: amount overflows stock of %d", ErrValidation, g.Amount)
		}
		amount = g.Amount + in.Amount
		return tx.SetGoodAmount(ctx, in.Name, amount)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert stock %q: %w", in.Name, err)
	}

	l.logger.Debug("stock updated", zap.String("good", in.Name), zap.Int("amount", amount))
	return amount, nil
}

// GetStock returns the amount held of name, or 0 if the good is unknown.
func (l *Ledger) GetStock(ctx context.Context, name string) (int, error) {
	var amount int
	err := l.store.View(ctx, func(tx Tx) error {
		g, err := tx.Good(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		amount = g.Amount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("get stock %q: %w", name, err)
	}
	return amount, nil
}

// ListStock returns every good with a non-zero amount, ordered by name.
func (l *Ledger) ListStock(ctx context.Context) ([]StockLevel, error) {
	var levels []StockLevel
	err := l.store.View(ctx, func(tx Tx) error {
		goods, err := tx.Goods(ctx)
		if err != nil {
			return err
		}
		levels = make([]StockLevel, 0, len(goods))
		for _, g := range goods {
			if g.Amount == 0 {
				continue
			}
			levels = append(levels, StockLevel{Name: g.Name, Amount: g.Amount})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return levels, nil
}

// Sell debits in.Amount from the named good and credits price*amount to the
// running sales total in one transaction. It fails with ErrNotFound or
// ErrInsufficientStock without changing anything.
func (l *Ledger) Sell(ctx context.Context, in SaleInput) (*SaleResult, error) {
	var res *SaleResult
	err := l.update(ctx, "sell", func(tx Tx) error {
		g, err := tx.GoodForUpdate(ctx, in.Name)
		if err != nil {
			return err
		}
		if g.Amount < in.Amount {
			return ErrInsufficientStock
		}

		value := in.Price * float64(in.Amount)
		if math.IsInf(value, 0) || math.IsNaN(value) {
			return fmt.Errorf("%w: sale value is not finite", ErrValidation)
		}
		if err := creditSales(ctx, tx, value); err != nil {
			return err
		}
		remaining := g.Amount - in.Amount
		if err := tx.SetGoodAmount(ctx, in.Name, remaining); err != nil {
			return err
		}
		res = &SaleResult{Name: in.Name, Remaining: remaining, Value: value}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sell %q: %w", in.Name, err)
	}

	l.logger.Debug("sale committed",
		zap.String("good", res.Name),
		zap.Int("remaining", res.Remaining),
		zap.Float64("sale_value", res.Value),
	)
	return res, nil
}

func creditSales(ctx context.Context, tx Tx, value float64) error {
	agg, err := tx.AggregateForUpdate(ctx, TotalSalesKey)
	if errors.Is(err, ErrNotFound) {
		return tx.InsertAggregate(ctx, TotalSalesKey, formatValue(value))
	}
	if err != nil {
		return err
	}
	current, err := strconv.ParseFloat(agg.Value, 64)
	if err != nil {
		return fmt.Errorf("parse %s %q: %w", TotalSalesKey, agg.Value, err)
	}
	total := current + value
	if math.IsInf(total, 0) {
		return fmt.Errorf("%w: %s would overflow", ErrValidation, TotalSalesKey)
	}
	return tx.SetAggregate(ctx, TotalSalesKey, formatValue(total))
}

// ClearStock deletes every good. The sales total is kept.
func (l *Ledger) ClearStock(ctx context.Context) (int64, error) {
	var n int64
	err := l.update(ctx, "clear_stock", func(tx Tx) error {
		var err error
		n, err = tx.DeleteGoods(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear stock: %w", err)
	}

	l.logger.Debug("stock cleared", zap.Int64("deleted", n))
	return n, nil
}

// TotalSales returns the cumulative sales value, or 0 if nothing was sold.
func (l *Ledger) TotalSales(ctx context.Context) (float64, error) {
	var total float64
	err := l.store.View(ctx, func(tx Tx) error {
		agg, err := tx.Aggregate(ctx, TotalSalesKey)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		total, err = strconv.ParseFloat(agg.Value, 64)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("total sales: %w", err)
	}
	return total, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
