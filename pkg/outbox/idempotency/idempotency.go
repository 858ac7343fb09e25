package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Tracker remembers which outbox events a channel has already handed to a
// broker. A row whose publish succeeded but whose published mark failed is
// claimed again later; the marker lets the publisher settle it without
// sending a duplicate.
type Tracker struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewTracker(store redis.IdempotencyStore, ttl time.Duration) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Tracker{store: store, ttl: ttl}, nil
}

// Claim sets the delivery marker. It returns true when the marker was
// already present, meaning the event went out on an earlier attempt.
func (t *Tracker) Claim(ctx context.Context, channel string, eventID uuid.UUID) (bool, error) {
	key, err := t.key(channel, eventID)
	if err != nil {
		return false, err
	}
	set, err := t.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), t.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release drops the marker after a failed publish so the retry goes out.
func (t *Tracker) Release(ctx context.Context, channel string, eventID uuid.UUID) error {
	key, err := t.key(channel, eventID)
	if err != nil {
		return err
	}
	return t.store.Del(ctx, key)
}

func (t *Tracker) key(channel string, eventID uuid.UUID) (string, error) {
	if channel == "" {
		return "", errors.New("channel is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return t.store.IdempotencyKey(fmt.Sprintf("outbox:delivered:%s", channel), eventID.String()), nil
}
