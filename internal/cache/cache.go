// Package cache memoizes expensive computations by content fingerprint.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backend stores opaque values. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Get returns the value and true when present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Store coordinates lookups, single-flight computation and writes.
type Store struct {
	backend Backend
	group   singleflight.Group
	ttls    map[string]time.Duration
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL attaches an expiry to every entry written in namespace.
func WithTTL(namespace string, ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttls[namespace] = ttl
		}
	}
}

// WithLogger sets the logger used to report degraded backend operations.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a Store over backend. A nil backend disables caching: every
// call computes, though concurrent callers for one key still share a flight.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		ttls:    make(map[string]time.Duration),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key joins a namespace and a fingerprint into a backend key.
func Key(namespace, fingerprint string) string {
	return namespace + ":" + fingerprint
}

// TTL returns the configured expiry for namespace, zero when none.
func (s *Store) TTL(namespace string) time.Duration {
	return s.ttls[namespace]
}

// Lookup returns a cached value. Backend errors are reported as a miss.
func (s *Store) Lookup(ctx context.Context, namespace, fingerprint string) ([]byte, bool) {
	return s.get(ctx, Key(namespace, fingerprint))
}

// Put writes a value with an explicit ttl, overriding the namespace ttl
// when ttl > 0. Backend errors are logged and dropped.
func (s *Store) Put(ctx context.Context, namespace, fingerprint string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.TTL(namespace)
	}
	s.set(ctx, Key(namespace, fingerprint), value, ttl)
}

// GetOrCompute returns the cached value for the key or runs compute. While
// a computation for a key is in flight, further callers wait for it rather
// than starting their own. A failed computation stores nothing. The bool
// result reports whether the value came from the cache.
func (s *Store) GetOrCompute(ctx context.Context, namespace, fingerprint string, compute ComputeFunc) ([]byte, bool, error) {
	key := Key(namespace, fingerprint)

	if value, ok := s.get(ctx, key); ok {
		return value, true, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// The flight must not die with the first caller's context.
		flightCtx := context.WithoutCancel(ctx)

		// A flight that finished just before this one may have stored it.
		if value, ok := s.get(flightCtx, key); ok {
			return flightResult{value: value, cached: true}, nil
		}

		value, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}

		s.set(flightCtx, key, value, s.TTL(namespace))
		return flightResult{value: value}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("waiting for %s: %w", namespace, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		out, ok := res.Val.(flightResult)
		if !ok {
			return nil, false, errors.New("unexpected flight result")
		}
		return out.value, out.cached, nil
	}
}

type flightResult struct {
	value  []byte
	cached bool
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool) {
	if s.backend == nil {
		return nil, false
	}

	value, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache lookup failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, ok
}

func (s *Store) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if s.backend == nil {
		return
	}

	if err := s.backend.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
}
