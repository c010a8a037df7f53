package storage

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	pkgerrors "github.com/pkg/errors"
)

type Badger struct {
	db *badger.DB
}

func OpenBadger(path string) (*Badger, error) {
	if path == "" {
		return nil, errors.New("badger: path is required")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open badger at %v", path)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, pkgerrors.Wrapf(err, "badger get %v", key)
	}
	return out, found, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return pkgerrors.Wrapf(err, "badger set %v", key)
}

func (b *Badger) SetMany(_ context.Context, entries []Entry) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.Set([]byte(e.Key), e.Value); err != nil {
				return err
			}
		}
		return nil
	})
	return pkgerrors.Wrap(err, "badger batch")
}

func (b *Badger) Close() error {
	return b.db.Close()
}
