// Package kv defines the key-value persistence surface used by the sync queue.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("kv store is closed")

// Store is a durable string key-value store.
// A missing key is reported with found=false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// RemoveMany removes all keys in one atomic operation.
	RemoveMany(ctx context.Context, keys []string) error
	ListKeys(ctx context.Context) ([]string, error)
}

// UpdateFunc receives the current value of a key and returns the value to store.
// Returning write=false leaves the key untouched.
type UpdateFunc func(current string, found bool) (next string, write bool, err error)

// Updater is implemented by stores that can run a read-modify-write atomically.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Pinger is implemented by stores backed by a connection that can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Update runs fn against key. It is atomic when store implements Updater,
// otherwise it degrades to a Get followed by a Set.
func Update(ctx context.Context, store Store, key string, fn UpdateFunc) error {
	if u, ok := store.(Updater); ok {
		return u.Update(ctx, key, fn)
	}

	current, found, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}

	next, write, err := fn(current, found)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}

	if err := store.Set(ctx, key, next); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
