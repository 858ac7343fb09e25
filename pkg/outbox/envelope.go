package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// EnvelopeVersion is the schema version written by Seal.
const EnvelopeVersion = 1

var ErrMalformedEnvelope = errors.New("malformed outbox envelope")

type Actor struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Envelope wraps every outbox payload. Consumers dedupe on EventID.
type Envelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *Actor                `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

// Seal marshals the event data into a fresh envelope.
func Seal(event DomainEvent) (Envelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return Envelope{
		Version:    version,
		EventID:    uuid.NewString(),
		EventType:  event.EventType,
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}, nil
}

// Open decodes a stored payload and rejects envelopes no publisher can
// forward: unknown versions, missing ids and empty data.
func Open(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, env.Version)
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		return Envelope{}, fmt.Errorf("%w: event id %q", ErrMalformedEnvelope, env.EventID)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: empty data", ErrMalformedEnvelope)
	}
	return env, nil
}
