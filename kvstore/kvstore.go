// Package kvstore is the persistent key-value layer under the studio collections.
// Every value is a complete JSON document stored under a fixed key; writes replace
// the whole value and there are no transactions.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"studiobook/config"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is a synchronous key-value store holding JSON text.
type Store interface {
	// Read returns the value stored under key. found is false when the key is absent.
	Read(ctx context.Context, key string) (value string, found bool, err error)
	// Write replaces the value stored under key.
	Write(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key.
	Keys(ctx context.Context) ([]string, error)
	// Close flushes pending writes and releases resources.
	Close() error
}

// Open creates the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case "file", "":
		return NewFileStore(FileOptions{
			Path:         cfg.Store.FilePath,
			SaveInterval: cfg.Store.SaveInterval,
			EnableBackup: cfg.Store.EnableBackup,
			Watch:        cfg.Store.WatchFile,
		})
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Prefix:   cfg.Store.RedisPrefix,
		})
	case "sqlite":
		return NewSQLiteStore(cfg.Store.SQLitePath)
	case "mongo":
		return NewMongoStore(ctx, MongoOptions{
			URI:        cfg.Store.MongoURI,
			Database:   cfg.Store.MongoDatabase,
			Collection: cfg.Store.MongoCollection,
		})
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnknownBackend, cfg.Store.Backend)
}
