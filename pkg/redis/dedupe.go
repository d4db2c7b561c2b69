package redis

import (
	"context"
	"errors"
	"time"
)

type markStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Dedupe hands out one claim per (scope, id) until the TTL lapses. Outbox
// consumers scope by consumer name; the Stripe webhook by provider.
// Claims are a fast path only; durable state decides what really happened.
type Dedupe struct {
	store markStore
	ttl   time.Duration
}

func NewDedupe(store markStore, ttl time.Duration) (*Dedupe, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("dedupe ttl must be non-negative")
	}
	return &Dedupe{store: store, ttl: ttl}, nil
}

// Claim reports false when the id is already claimed within scope.
func (d *Dedupe) Claim(ctx context.Context, scope, id string) (bool, error) {
	key, err := claimKey(scope, id)
	if err != nil {
		return false, err
	}
	return d.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl)
}

// Release drops a claim so a redelivery is handled again.
func (d *Dedupe) Release(ctx context.Context, scope, id string) error {
	key, err := claimKey(scope, id)
	if err != nil {
		return err
	}
	return d.store.Del(ctx, key)
}

func claimKey(scope, id string) (string, error) {
	switch {
	case scope == "":
		return "", errors.New("dedupe scope is required")
	case id == "":
		return "", errors.New("dedupe id is required")
	}
	return Key("evt", scope, id), nil
}
