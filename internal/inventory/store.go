package inventory

import "context"

// Store runs functions inside transactions.
type Store interface {
	// Update runs fn in a read-write transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	Update(ctx context.Context, fn func(Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of record operations available inside a transaction.
// Lookups return ErrNotFound for missing records.
type Tx interface {
	Good(ctx context.Context, name string) (*Good, error)

	// GoodForUpdate is Good plus a lock held until the transaction ends.
	GoodForUpdate(ctx context.Context, name string) (*Good, error)

	// Goods returns every good ordered by name (byte order).
	Goods(ctx context.Context) ([]Good, error)

	// InsertGood returns ErrConflict if a good with the same name exists.
	InsertGood(ctx context.Context, g *Good) error
	SetGoodAmount(ctx context.Context, name string, amount int) error

	// DeleteGoods removes every good and reports how many were removed.
	DeleteGoods(ctx context.Context) (int64, error)

	Aggregate(ctx context.Context, key string) (*Aggregate, error)
	AggregateForUpdate(ctx context.Context, key string) (*Aggregate, error)

	// InsertAggregate returns ErrConflict if key already exists.
	InsertAggregate(ctx context.Context, key, value string) error
	SetAggregate(ctx context.Context, key, value string) error
}
