// Package storage is a key-value wrapper over durable client storage. Values
// are JSON encoded; every driver treats a missing key as ErrNotFound.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
)

var (
	ErrNotFound      = errors.New("storage: key not found")
	ErrInvalidKey    = errors.New("storage: invalid key")
	ErrUnknownDriver = errors.New("storage: unknown driver")
)

type Store interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// Open builds the durable store selected by cfg.Driver.
func Open(cfg configs.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
