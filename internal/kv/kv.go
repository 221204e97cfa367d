// Package kv provides the key/value namespaces that back local-mode catalog
// persistence. Every collection is stored as one JSON array under a fixed key.
package kv

import (
	"context"
	"fmt"
)

// Namespace is a flat key/value space. Keys are disjoint per collection, so
// implementations only need per-key atomicity.
type Namespace interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Driver identifies a concrete namespace implementation.
type Driver string

const (
	DriverMemory Driver = "memory" // process-local, lost on exit
	DriverRedis  Driver = "redis"  // shared redis server
	DriverSQLite Driver = "sqlite" // embedded sqlite file
	DriverObject Driver = "object" // minio / s3 bucket
)

// Options carries the settings for every driver; only the selected driver's
// fields are read.
type Options struct {
	Driver     Driver
	RedisURL   string
	SQLitePath string
	KeyPrefix  string
	Object     ObjectOptions
}

// Open selects a namespace implementation. Defaults to sqlite when unset.
func Open(ctx context.Context, opts Options) (Namespace, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		return NewRedis(ctx, opts.RedisURL, opts.KeyPrefix)
	case DriverSQLite:
		return NewSQLite(ctx, opts.SQLitePath)
	case DriverObject:
		return NewObject(ctx, opts.Object)
	default:
		return nil, fmt.Errorf("unknown kv driver %s", driver)
	}
}
