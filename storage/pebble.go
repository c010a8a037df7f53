package storage

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
	pkgerrors "github.com/pkg/errors"
)

type Pebble struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*Pebble, error) {
	if dir == "" {
		return nil, errors.New("pebble: path is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open pebble at %v", dir)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrapf(err, "pebble get %v", key)
	}
	defer closer.Close()

	return append([]byte(nil), val...), true, nil
}

func (p *Pebble) Set(_ context.Context, key string, value []byte) error {
	return pkgerrors.Wrapf(p.db.Set([]byte(key), value, pebble.Sync), "pebble set %v", key)
}

func (p *Pebble) SetMany(_ context.Context, entries []Entry) error {
	b := p.db.NewBatch()
	defer b.Close()

	for _, e := range entries {
		if err := b.Set([]byte(e.Key), e.Value, nil); err != nil {
			return pkgerrors.Wrapf(err, "pebble batch set %v", e.Key)
		}
	}
	return pkgerrors.Wrap(b.Commit(pebble.Sync), "pebble batch commit")
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
