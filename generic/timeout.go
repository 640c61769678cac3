package generic

import (
	"context"
	"time"
)

// =============================================================================
// TIMEOUT STORE - Bounds every store call
// =============================================================================

// timeoutStore applies a per-call deadline to each blocking operation.
// Subscribe is not blocking and passes straight through.
type timeoutStore struct {
	inner   RecordStore
	timeout time.Duration
}

// WithTimeout wraps store so each call gets at most d. A non-positive d
// returns store unchanged.
func WithTimeout(store RecordStore, d time.Duration) RecordStore {
	if d <= 0 {
		return store
	}
	return &timeoutStore{inner: store, timeout: d}
}

func (s *timeoutStore) Read(ctx context.Context, path string) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Read(ctx, path)
}

func (s *timeoutStore) Write(ctx context.Context, path string, value []byte) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Write(ctx, path, value)
}

func (s *timeoutStore) CompareAndWrite(ctx context.Context, path string, value []byte, version int64) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.CompareAndWrite(ctx, path, value, version)
}

func (s *timeoutStore) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Delete(ctx, path)
}

func (s *timeoutStore) List(ctx context.Context, prefix string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.List(ctx, prefix)
}

func (s *timeoutStore) Subscribe(path string, fn func(ChangeEvent)) func() {
	return s.inner.Subscribe(path, fn)
}
