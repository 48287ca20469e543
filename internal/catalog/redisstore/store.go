// Package redisstore is the Redis-backed catalog store: view definitions
// and per-band dimension metadata serialized as JSON under per-view keys.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openrasters/coverageview/internal/catalog"
	"github.com/openrasters/coverageview/internal/observability"
	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/view"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

type Store struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCatalogOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func viewKey(name string) string {
	return "cv:view:" + catalog.SanitizeKey(name)
}

func dimsKey(name string) string {
	return "cv:dims:" + catalog.SanitizeKey(name)
}

func (s *Store) PutView(ctx context.Context, def *view.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	buf, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal view %q: %w", def.Name, err)
	}
	start := time.Now()
	err = s.rdb.Set(ctx, viewKey(def.Name), buf, 0).Err()
	observability.ObserveCatalogOp("put_view", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", viewKey(def.Name), err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, name string) (*view.Definition, error) {
	start := time.Now()
	buf, err := s.rdb.Get(ctx, viewKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCatalogOp("get_view", nil, time.Since(start).Seconds())
		return nil, catalog.ErrNotFound
	}
	observability.ObserveCatalogOp("get_view", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis GET %q: %w", viewKey(name), err)
	}
	var def view.Definition
	if err := json.Unmarshal(buf, &def); err != nil {
		return nil, fmt.Errorf("decode view %q: %w", name, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("stored view %q is invalid: %w", name, err)
	}
	return &def, nil
}

func (s *Store) PutDimensions(ctx context.Context, name string, dims []raster.SampleDimension) error {
	buf, err := json.Marshal(dims)
	if err != nil {
		return fmt.Errorf("marshal dimensions of %q: %w", name, err)
	}
	start := time.Now()
	err = s.rdb.Set(ctx, dimsKey(name), buf, 0).Err()
	observability.ObserveCatalogOp("put_dims", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", dimsKey(name), err)
	}
	return nil
}

func (s *Store) Dimensions(ctx context.Context, name string) ([]raster.SampleDimension, error) {
	start := time.Now()
	buf, err := s.rdb.Get(ctx, dimsKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Dimensions are optional; absence is not an error.
		observability.ObserveCatalogOp("get_dims", nil, time.Since(start).Seconds())
		return nil, nil
	}
	observability.ObserveCatalogOp("get_dims", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis GET %q: %w", dimsKey(name), err)
	}
	var dims []raster.SampleDimension
	if err := json.Unmarshal(buf, &dims); err != nil {
		return nil, fmt.Errorf("decode dimensions of %q: %w", name, err)
	}
	return dims, nil
}

func (s *Store) DeleteView(ctx context.Context, name string) error {
	start := time.Now()
	err := s.rdb.Del(ctx, viewKey(name), dimsKey(name)).Err()
	observability.ObserveCatalogOp("del_view", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %q: %w", viewKey(name), err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
