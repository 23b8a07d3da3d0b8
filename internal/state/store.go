package state

import "context"

// Store is a string key/value store. Nonce sources and the placement
// executor share one instance, separated by key prefix.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns every key with the given prefix.
	List(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}
