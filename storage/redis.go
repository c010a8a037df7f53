package storage

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr        []string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
	KeyPrefix   string
}

type Redis struct {
	c      redis.UniversalClient
	prefix string
}

func OpenRedis(opts RedisOptions) (*Redis, error) {
	if len(opts.Addr) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	c := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:                 opts.Addr,
		Username:              opts.Username,
		Password:              opts.Password,
		DB:                    opts.DB,
		DialTimeout:           opts.DialTimeout,
		ContextTimeoutEnabled: true,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, pkgerrors.Wrap(err, "redis ping")
	}

	return &Redis{c: c, prefix: opts.KeyPrefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrapf(err, "redis get %v", key)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return pkgerrors.Wrapf(r.c.Set(ctx, r.prefix+key, value, 0).Err(), "redis set %v", key)
}

// SetMany wraps the writes in MULTI/EXEC.
func (r *Redis) SetMany(ctx context.Context, entries []Entry) error {
	_, err := r.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, r.prefix+e.Key, e.Value, 0)
		}
		return nil
	})
	return pkgerrors.Wrap(err, "redis batch")
}

func (r *Redis) Close() error {
	return r.c.Close()
}
