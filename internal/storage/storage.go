// Package storage wraps the durable key-value collaborator used to seed
// each room's CRDT state at init (spec.md §3's schema-array, map and "crdt"
// keys) and to persist the document CRDT under "crdt"; the map-of-maps
// state is read from it but never written back. The store can be fronted
// by a circuit breaker so a struggling store degrades gracefully instead
// of stalling every room's attach sequence.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"roomcoordinator/internal/metrics"
)

// ErrNotFound is not returned by any KV implementation in this package:
// Get reports a key that has never been written as (nil, nil).
var ErrNotFound = errors.New("storage: key not found")

// KV is the durable key-value collaborator a room's state is persisted
// through. Values are opaque bytes; callers own (de)serialization.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// BreakerStore wraps a KV implementation with a circuit breaker, tripping
// open after repeated failures so a degraded store fails fast instead of
// stacking up timeouts across every room's attach sequence.
type BreakerStore struct {
	next KV
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a named circuit breaker. name is used
// both as the breaker's identity and as the "store" label on the
// circuit_breaker_state metric.
func NewBreakerStore(name string, next KV) *BreakerStore {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.CircuitBreakerRejections.WithLabelValues(b.cb.Name()).Inc()
		}
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]byte), nil
}

func (b *BreakerStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Put(ctx, key, value)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		metrics.CircuitBreakerRejections.WithLabelValues(b.cb.Name()).Inc()
	}
	return err
}
