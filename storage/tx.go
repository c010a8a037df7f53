package storage

import (
	"context"
	"errors"
)

var ErrTxClosed = errors.New("storage transaction already committed")

// Tx stages writes over a base Store. Reads see staged values first.
// Nothing reaches the base until Commit; dropping a Tx discards it.
type Tx struct {
	base   Store
	staged map[string][]byte
	order  []string
	done   bool
}

func Begin(base Store) *Tx {
	return &Tx{base: base, staged: make(map[string][]byte)}
}

func (tx *Tx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := tx.staged[key]; ok {
		return append([]byte(nil), v...), true, nil
	}
	return tx.base.Get(ctx, key)
}

func (tx *Tx) Set(_ context.Context, key string, value []byte) error {
	if tx.done {
		return ErrTxClosed
	}
	if _, ok := tx.staged[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.staged[key] = append([]byte(nil), value...)
	return nil
}

// Entries returns the staged writes in first-write order.
func (tx *Tx) Entries() []Entry {
	entries := make([]Entry, 0, len(tx.order))
	for _, k := range tx.order {
		entries = append(entries, Entry{Key: k, Value: tx.staged[k]})
	}
	return entries
}

// Commit applies the staged writes, in one batch when the base supports it.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxClosed
	}
	tx.done = true

	entries := tx.Entries()
	if len(entries) == 0 {
		return nil
	}
	if b, ok := tx.base.(Batcher); ok {
		return b.SetMany(ctx, entries)
	}
	return setSequential(ctx, tx.base, entries)
}

// Close is a no-op; the base store is owned by the caller.
func (tx *Tx) Close() error {
	return nil
}
