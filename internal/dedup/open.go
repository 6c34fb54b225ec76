package dedup

import (
	"context"
	"fmt"
	"time"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend       string // bolt, redis or memory
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "bolt", "":
		return NewBoltStore(opts.BoltPath, opts.TTL)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.TTL)
	case "memory":
		return NewMemoryStore(opts.TTL), nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", opts.Backend)
	}
}
