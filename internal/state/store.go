package state

import "context"

// Store is a flat durable key-value store. The engine keeps two kinds of
// values in it: the position book and the cached market batch.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
