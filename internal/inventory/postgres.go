package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgreSQL error codes mapped to ErrConflict, or ErrValidation for
// pgNumericOutOfRange.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgNumericOutOfRange    = "22003"
)

const goodColumns = "id, name, amount, price, created_at, updated_at"

// PostgresStore persists goods and aggregates in PostgreSQL. It implements
// the Store interface. The schema lives in migrations/.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, pgx.TxOptions{}, fn)
}

// View implements Store.
func (s *PostgresStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *PostgresStore) run(ctx context.Context, opts pgx.TxOptions, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Warn("commit failed", zap.Error(err))
		return mapPgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// mapPgError turns lost races into ErrConflict and out-of-range values into
// ErrValidation. Other errors are left alone.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case pgNumericOutOfRange:
			return fmt.Errorf("%w: %s", ErrValidation, pgErr.Message)
		}
	}
	return err
}

type postgresTx struct {
	tx pgx.Tx
}

func scanGood(row pgx.Row) (*Good, error) {
	g := &Good{}
	if err := row.Scan(&g.ID, &g.Name, &g.Amount, &g.Price, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func (t *postgresTx) Good(ctx context.Context, name string) (*Good, error) {
	g, err := scanGood(t.tx.QueryRow(ctx,
		"SELECT "+goodColumns+" FROM goods WHERE name = $1", name))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get good %q: %w", name, err)
	}
	return g, err
}

func (t *postgresTx) GoodForUpdate(ctx context.Context, name string) (*Good, error) {
	g, err := scanGood(t.tx.QueryRow(ctx,
		"SELECT "+goodColumns+" FROM goods WHERE name = $1 FOR UPDATE", name))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lock good %q: %w", name, err)
	}
	return g, err
}

func (t *postgresTx) Goods(ctx context.Context) ([]Good, error) {
	rows, err := t.tx.Query(ctx,
		"SELECT "+goodColumns+` FROM goods ORDER BY name COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("list goods: %w", err)
	}
	defer rows.Close()

	var goods []Good
	for rows.Next() {
		g, err := scanGood(rows)
		if err != nil {
			return nil, fmt.Errorf("scan good: %w", err)
		}
		goods = append(goods, *g)
	}
	return goods, rows.Err()
}

func (t *postgresTx) InsertGood(ctx context.Context, g *Good) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO goods (id, name, amount, price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.Name, g.Amount, g.Price, g.CreatedAt, g.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert good %q: %w", g.Name, mapPgError(err))
	}
	return nil
}

func (t *postgresTx) SetGoodAmount(ctx context.Context, name string, amount int) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE goods SET amount = $2, updated_at = NOW() WHERE name = $1", name, amount)
	if err != nil {
		return fmt.Errorf("update good %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) DeleteGoods(ctx context.Context) (int64, error) {
	tag, err := t.tx.Exec(ctx, "DELETE FROM goods")
	if err != nil {
		return 0, fmt.Errorf("delete goods: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *postgresTx) aggregate(ctx context.Context, query, key string) (*Aggregate, error) {
	a := &Aggregate{}
	if err := t.tx.QueryRow(ctx, query, key).Scan(&a.Key, &a.Value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get aggregate %q: %w", key, err)
	}
	return a, nil
}

func (t *postgresTx) Aggregate(ctx context.Context, key string) (*Aggregate, error) {
	return t.aggregate(ctx, "SELECT key, value FROM global_data WHERE key = $1", key)
}

func (t *postgresTx) AggregateForUpdate(ctx context.Context, key string) (*Aggregate, error) {
	return t.aggregate(ctx, "SELECT key, value FROM global_data WHERE key = $1 FOR UPDATE", key)
}

func (t *postgresTx) InsertAggregate(ctx context.Context, key, value string) error {
	if _, err := t.tx.Exec(ctx,
		"INSERT INTO global_data (key, value) VALUES ($1, $2)", key, value,
	); err != nil {
		return fmt.Errorf("insert aggregate %q: %w", key, mapPgError(err))
	}
	return nil
}

func (t *postgresTx) SetAggregate(ctx context.Context, key, value string) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE global_data SET value = $2 WHERE key = $1", key, value)
	if err != nil {
		return fmt.Errorf("update aggregate %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
