package inventory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory, thread-safe Store. Write transactions are
// serialised by one lock and operate on a staged copy of the data that is
// published only when the transaction function succeeds.
type MemoryStore struct {
	mu         sync.RWMutex
	goods      map[string]Good
	aggregates map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		goods:      make(map[string]Good),
		aggregates: make(map[string]string),
	}
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		goods:      maps.Clone(s.goods),
		aggregates: maps.Clone(s.aggregates),
		writable:   true,
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.goods, s.aggregates = tx.goods, tx.aggregates
	return nil
}

// View implements Store.
func (s *MemoryStore) View(_ context.Context, fn func(Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{goods: s.goods, aggregates: s.aggregates})
}

type memoryTx struct {
	goods      map[string]Good
	aggregates map[string]string
	writable   bool
}

func (t *memoryTx) Good(_ context.Context, name string) (*Good, error) {
	g, ok := t.goods[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

// GoodForUpdate needs no extra lock: the store lock is already exclusive.
func (t *memoryTx) GoodForUpdate(ctx context.Context, name string) (*Good, error) {
	return t.Good(ctx, name)
}

func (t *memoryTx) Goods(_ context.Context) ([]Good, error) {
	out := make([]Good, 0, len(t.goods))
	for _, g := range t.goods {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memoryTx) InsertGood(_ context.Context, g *Good) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.goods[g.Name]; ok {
		return ErrConflict
	}
	t.goods[g.Name] = *g
	return nil
}

func (t *memoryTx) SetGoodAmount(_ context.Context, name string, amount int) error {
	if !t.writable {
		return errReadOnly
	}
	g, ok := t.goods[name]
	if !ok {
		return ErrNotFound
	}
	g.Amount = amount
	g.UpdatedAt = time.Now().UTC()
	t.goods[name] = g
	return nil
}

func (t *memoryTx) DeleteGoods(_ context.Context) (int64, error) {
	if !t.writable {
		return 0, errReadOnly
	}
	n := int64(len(t.goods))
	t.goods = make(map[string]Good)
	return n, nil
}

func (t *memoryTx) Aggregate(_ context.Context, key string) (*Aggregate, error) {
	v, ok := t.aggregates[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Aggregate{Key: key, Value: v}, nil
}

func (t *memoryTx) AggregateForUpdate(ctx context.Context, key string) (*Aggregate, error) {
	return t.Aggregate(ctx, key)
}

func (t *memoryTx) InsertAggregate(_ context.Context, key, value string) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.aggregates[key]; ok {
		return ErrConflict
	}
	t.aggregates[key] = value
	return nil
}

func (t *memoryTx) SetAggregate(_ context.Context, key, value string) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.aggregates[key]; !ok {
		return ErrNotFound
	}
	t.aggregates[key] = value
	return nil
}
