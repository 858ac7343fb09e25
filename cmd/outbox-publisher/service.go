package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	defaultClaimLease     = 30 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type pinger interface {
	Ping(context.Context) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// deliveryTracker remembers events already accepted by the broker.
type deliveryTracker interface {
	Claim(ctx context.Context, channel string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, channel string, eventID uuid.UUID) error
}

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    pinger
	Source   outbox.Source
	Registry registryResolver
	Broker   broker
	Metrics  *metrics.OutboxMetrics
	// Tracker is optional.
	Tracker deliveryTracker
}

// Service drains the outbox onto the configured broker. Rows are leased
// while in flight so concurrent publishers never pick the same event.
type Service struct {
	logg         *logger.Logger
	store        pinger
	source       outbox.Source
	registry     registryResolver
	broker       broker
	metrics      *metrics.OutboxMetrics
	tracker      deliveryTracker
	batchSize    int
	maxAttempts  int
	lease        time.Duration
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Store == nil {
		return nil, errors.New("storage backend is required")
	}
	if params.Source == nil {
		return nil, errors.New("outbox source is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.Broker == nil {
		return nil, errors.New("broker is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	lease := params.Config.Outbox.ClaimLease
	if lease <= 0 {
		lease = defaultClaimLease
	}

	return &Service{
		logg:         params.Logger,
		store:        params.Store,
		source:       params.Source,
		registry:     params.Registry,
		broker:       params.Broker,
		metrics:      params.Metrics,
		tracker:      params.Tracker,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		lease:        lease,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "storage", s.store.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, s.broker.Name(), s.broker.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch claims one batch and settles every row in it. It reports
// whether anything was claimed so the loop can skip the idle sleep.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	events, err := s.source.Claim(ctx, s.batchSize, s.maxAttempts, s.lease)
	if err != nil {
		return false, fmt.Errorf("claim outbox batch: %w", err)
	}
	if len(events) == 0 {
		return false, nil
	}

	for _, event := range events {
		if err := s.publishOne(ctx, event); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *Service) publishOne(ctx context.Context, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.handleTerminal(ctx, event, enums.OutboxDLQReasonNonRetryable, err, s.eventFields(event, outbox.Envelope{}, ""))
	}

	topic := resolved.Descriptor.Topic
	fields := s.eventFields(event, resolved.Envelope, topic)

	delivered, err := s.claimDelivery(ctx, event)
	if err != nil {
		return err
	}
	if delivered {
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event already delivered, settling row")
		if markErr := s.source.MarkPublished(ctx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		return nil
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	err = s.broker.Publish(publishCtx, topic, toBrokerMessage(event, resolved.Envelope))
	cancel()
	if err == nil {
		if markErr := s.source.MarkPublished(ctx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.IncPublished(s.broker.Name())
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	s.metrics.IncFailed(s.broker.Name())
	s.releaseDelivery(ctx, event)

	if registry.IsNonRetryable(err) {
		return s.handleTerminal(ctx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return s.handleTerminal(ctx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	ctxWithFields := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
	s.logg.Warn(ctxWithFields, "outbox publish failed")
	if markErr := s.source.MarkFailed(ctx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return nil
}

func (s *Service) claimDelivery(ctx context.Context, event models.OutboxEvent) (bool, error) {
	if s.tracker == nil {
		return false, nil
	}
	delivered, err := s.tracker.Claim(ctx, s.broker.Name(), event.ID)
	if err != nil {
		return false, fmt.Errorf("claim delivery marker %s: %w", event.ID, err)
	}
	return delivered, nil
}

func (s *Service) releaseDelivery(ctx context.Context, event models.OutboxEvent) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Release(ctx, s.broker.Name(), event.ID); err != nil {
		s.logg.Error(ctx, "release delivery marker failed", err)
	}
}

func (s *Service) handleTerminal(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, fields map[string]any) error {
	fields["error_reason"] = reason
	ctxWithFields := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
	s.logg.Warn(ctxWithFields, "outbox event will not be retried")

	entry := event.DeadLetter(reason, err, time.Now())
	if dlqErr := s.source.DeadLetter(ctx, entry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.source.MarkTerminal(ctx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

// toBrokerMessage keys messages by aggregate so every event of one order
// stays ordered on partitioned brokers.
func toBrokerMessage(event models.OutboxEvent, envelope outbox.Envelope) brokerMessage {
	return brokerMessage{
		Key:  event.AggregateID.String(),
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.Envelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
		"broker":         s.broker.Name(),
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
