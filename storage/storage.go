package storage

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrUnavailable is returned when the backing medium cannot be reached.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage closed")
	// ErrEmptyKey is returned when an operation receives an empty key.
	ErrEmptyKey = errors.New("storage key is empty")
	// ErrCorrupt is returned when the backing medium holds data that cannot be
	// decoded. ClearAll recovers from it.
	ErrCorrupt = errors.New("storage corrupt")
)

// Store is a durable string key/value store.
//
// Operations issued sequentially by one caller are applied in order. Get reports
// ok=false for a missing key; a missing key is never an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
}

// Batcher is implemented by stores that can apply a group of writes atomically.
type Batcher interface {
	SetMany(ctx context.Context, values map[string]string) error
	RemoveMany(ctx context.Context, keys ...string) error
}

// SetMany writes every value in values. When s implements [Batcher] the group is
// written atomically; otherwise keys are written in sorted order and the first
// failure aborts the remaining writes.
func SetMany(ctx context.Context, s Store, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	for key := range values {
		if key == "" {
			return ErrEmptyKey
		}
	}
	if b, ok := s.(Batcher); ok {
		return b.SetMany(ctx, values)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := s.Set(ctx, key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMany deletes keys. Without [Batcher] support every key is attempted and
// the failures are joined.
func RemoveMany(ctx context.Context, s Store, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		if key == "" {
			return ErrEmptyKey
		}
	}
	if b, ok := s.(Batcher); ok {
		return b.RemoveMany(ctx, keys...)
	}

	var errs []error
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
