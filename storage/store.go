package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Store is the single-key persistence collaborator. It offers no
// multi-key transactions; callers serialize access themselves.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Entry is one staged key/value pair.
type Entry struct {
	Key   string
	Value []byte
}

// Batcher is implemented by backends that can apply several writes atomically.
type Batcher interface {
	SetMany(ctx context.Context, entries []Entry) error
}

const (
	DriverMemory = "memory"
	DriverSqlite = "sqlite"
	DriverBadger = "badger"
	DriverPebble = "pebble"
	DriverRedis  = "redis"
)

type Options struct {
	Driver string
	Path   string
	Redis  RedisOptions
}

// Open returns the backend selected by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSqlite:
		return OpenSqlite(opts.Path)
	case DriverBadger:
		return OpenBadger(opts.Path)
	case DriverPebble:
		return OpenPebble(opts.Path)
	case DriverRedis:
		return OpenRedis(opts.Redis)
	default:
		return nil, fmt.Errorf("unknown storage driver '%v'", opts.Driver)
	}
}

// GetJSON decodes the value at key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) (bool, error) {
	buf, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err = json.Unmarshal(buf, v); err != nil {
		return false, errors.Wrapf(err, "decode %v", key)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %v", key)
	}
	return s.Set(ctx, key, buf)
}

func setSequential(ctx context.Context, s Store, entries []Entry) error {
	for _, e := range entries {
		if err := s.Set(ctx, e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}
