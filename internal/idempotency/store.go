// Package idempotency deduplicates mutating HTTP requests that carry an
// Idempotency-Key header, replaying the stored response for retries.
package idempotency

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInFlight       = errors.New("idempotency_request_in_flight")
	ErrKeyReused      = errors.New("idempotency_key_reused")
	ErrKeyTooLong     = errors.New("idempotency_key_too_long")
	ErrBodyTooLarge   = errors.New("idempotency_body_too_large")
	ErrStoreDisabled  = errors.New("idempotency_store_not_configured")
	ErrInvalidLockTTL = errors.New("idempotency_lock_ttl_must_be_positive")
)

// Record is a completed response kept for replay.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store keeps completed responses and short-lived in-flight locks.
type Store interface {
	// Get returns the record saved under key; ok is false when none exists.
	Get(ctx context.Context, key string) (rec Record, ok bool, err error)
	// Lock reserves key for one in-flight request. acquired is false when
	// another request holds it.
	Lock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	// Unlock releases the reservation if token still owns it.
	Unlock(ctx context.Context, key, token string) error
	Save(ctx context.Context, key string, rec Record, ttl time.Duration) error
}
