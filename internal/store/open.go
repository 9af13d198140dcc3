package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend         string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	RedisURI        string
}

// Open connects the configured backend. The caller owns the returned store
// and must Close it.
func Open(ctx context.Context, opts Options) (AlertStore, error) {
	switch opts.Backend {
	case BackendMongo:
		return OpenMongo(ctx, opts.MongoURI, opts.MongoDatabase, opts.MongoCollection)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisURI)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
