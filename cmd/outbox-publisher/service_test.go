package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/kafka"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first := orderCreatedRow(t, 0)
	second := orderCreatedRow(t, 0)
	source := &fakeSource{batches: [][]models.OutboxEvent{{first, second}}}
	brk := &fakeBroker{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, source, brk, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{first.ID}, source.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, source.published)
	assert.Empty(t, source.dead)
}

func TestProcessBatchReportsIdleWhenNothingClaimed(t *testing.T) {
	source := &fakeSource{}
	service := newTestService(t, source, &fakeBroker{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, 1, source.claims)
	assert.Equal(t, 30*time.Second, source.lastLease)
	assert.Equal(t, 3, source.lastMaxAttempts)
}

func TestPublishCarriesAggregateKeyAndAttributes(t *testing.T) {
	row := orderCreatedRow(t, 0)
	source := &fakeSource{batches: [][]models.OutboxEvent{{row}}}
	brk := &fakeBroker{}
	service := newTestService(t, source, brk, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, brk.sent, 1)

	sent := brk.sent[0]
	assert.Equal(t, "orders-topic", sent.topic)
	assert.Equal(t, row.AggregateID.String(), sent.msg.Key)
	assert.Equal(t, string(enums.EventOrderCreated), sent.msg.Attributes["event_type"])
	assert.Equal(t, row.AggregateID.String(), sent.msg.Attributes["aggregate_id"])
	assert.NotEmpty(t, sent.msg.Attributes["event_id"])
	assert.JSONEq(t, string(row.Payload), string(sent.msg.Data))
}

func TestUnresolvableRowGoesToDeadLetter(t *testing.T) {
	row := orderCreatedRow(t, 0)
	row.EventType = "unknown_event"
	source := &fakeSource{batches: [][]models.OutboxEvent{{row}}}
	brk := &fakeBroker{}
	service := newTestService(t, source, brk, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, brk.sent)
	require.Len(t, source.dead, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, source.dead[0].ErrorReason)
	assert.Equal(t, []uuid.UUID{row.ID}, source.terminal)
}

func TestNonRetryablePublishErrorGoesToDeadLetter(t *testing.T) {
	row := orderCreatedRow(t, 0)
	source := &fakeSource{batches: [][]models.OutboxEvent{{row}}}
	brk := &fakeBroker{errs: []error{registry.NewNonRetryableError(errors.New("topic missing"))}}
	service := newTestService(t, source, brk, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, source.dead, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, source.dead[0].ErrorReason)
	require.NotNil(t, source.dead[0].ErrorMessage)
	assert.Contains(t, *source.dead[0].ErrorMessage, "topic missing")
	assert.Empty(t, source.failed)
}

func TestMaxAttemptsGoesToDeadLetter(t *testing.T) {
	row := orderCreatedRow(t, 2)
	source := &fakeSource{batches: [][]models.OutboxEvent{{row}}}
	brk := &fakeBroker{errs: []error{errors.New("still down")}}
	service := newTestService(t, source, brk, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, source.dead, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, source.dead[0].ErrorReason)
	assert.Equal(t, 2, source.dead[0].AttemptCount)
	assert.Equal(t, []uuid.UUID{row.ID}, source.terminal)
	assert.Empty(t, source.failed)
}

func TestSourceErrorsAbortTheBatch(t *testing.T) {
	source := &fakeSource{claimErr: errors.New("db offline")}
	service := newTestService(t, source, &fakeBroker{}, nil)

	_, err := service.processBatch(context.Background())
	require.Error(t, err)

	row := orderCreatedRow(t, 0)
	source = &fakeSource{batches: [][]models.OutboxEvent{{row}}, markErr: errors.New("write failed")}
	service = newTestService(t, source, &fakeBroker{}, nil)
	processed, err := service.processBatch(context.Background())
	require.Error(t, err)
	assert.True(t, processed)
}

func TestPublishOutcomesAreCountedPerBroker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewOutboxMetrics(reg)
	source := &fakeSource{batches: [][]models.OutboxEvent{{orderCreatedRow(t, 0), orderCreatedRow(t, 0)}}}
	brk := &fakeBroker{name: config.BrokerKafka, errs: []error{nil, errors.New("transient")}}
	service := newTestService(t, source, brk, m)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "outbox_published_total", "outbox_publish_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeliveredRowIsSettledWithoutRepublish(t *testing.T) {
	row := orderCreatedRow(t, 1)
	source := &fakeSource{batches: [][]models.OutboxEvent{{row}}}
	brk := &fakeBroker{}
	tracker := &fakeTracker{delivered: map[uuid.UUID]bool{row.ID: true}}
	service := newTestService(t, source, brk, nil)
	service.tracker = tracker

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, brk.sent)
	assert.Equal(t, []uuid.UUID{row.ID}, source.published)
}

func TestFailedPublishReleasesDeliveryMarker(t *testing.T) {
	row := orderCreatedRow(t, 0)
	source := &fakeSource{batches: [][]models.OutboxEvent{{row}}}
	brk := &fakeBroker{errs: []error{errors.New("transient")}}
	tracker := &fakeTracker{delivered: map[uuid.UUID]bool{}}
	service := newTestService(t, source, brk, nil)
	service.tracker = tracker

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, tracker.delivered[row.ID])
	assert.Equal(t, []uuid.UUID{row.ID}, source.failed)
}

func TestRunFailsWhenBrokerUnreachable(t *testing.T) {
	brk := &fakeBroker{pingErr: errors.New("no route")}
	service := newTestService(t, &fakeSource{}, brk, nil)

	err := service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping failed")
}

func TestRunStopsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeSource{}, &fakeBroker{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}, Logger: logger.Nop()})
	assert.Error(t, err)
}

func TestNextBackoffCaps(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, time.Second, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, time.Second, maxBackoff))
	assert.Equal(t, 2*time.Second, nextBackoff(0, time.Second, maxBackoff))
}

func TestKafkaBrokerMapsMessage(t *testing.T) {
	writer := &fakeKafkaWriter{}
	brk := &kafkaBroker{writer: writer}
	err := brk.Publish(context.Background(), "orders", brokerMessage{
		Key:        "order-1",
		Data:       []byte(`{}`),
		Attributes: map[string]string{"event_type": "order_created"},
	})
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)
	assert.Equal(t, "orders", writer.msgs[0].Topic)
	assert.Equal(t, []byte("order-1"), writer.msgs[0].Key)
	assert.Equal(t, "order_created", writer.msgs[0].Headers["event_type"])
	assert.Equal(t, config.BrokerKafka, brk.Name())
}

func TestPubSubBrokerReusesPublisherPerTopic(t *testing.T) {
	pub := &fakePublisher{}
	built := 0
	brk := newPubSubBroker(&fakePubSubClient{}, func(topic string) publisher {
		built++
		return pub
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, brk.Publish(context.Background(), "orders", brokerMessage{Data: []byte(`{}`)}))
	}
	assert.Equal(t, 1, built)
	assert.Equal(t, 3, pub.calls)

	pub.err = errors.New("deadline")
	assert.Error(t, brk.Publish(context.Background(), "orders", brokerMessage{}))
}

func TestPubSubBrokerMissingPublisherIsNonRetryable(t *testing.T) {
	brk := newPubSubBroker(&fakePubSubClient{}, func(string) publisher { return nil })
	err := brk.Publish(context.Background(), "orders", brokerMessage{})
	assert.True(t, registry.IsNonRetryable(err))
}

func newTestService(t *testing.T, source *fakeSource, brk *fakeBroker, m *metrics.OutboxMetrics) *Service {
	t.Helper()
	reg, err := registry.NewEventRegistry("orders-topic")
	require.NoError(t, err)
	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxAttempts = 3
	cfg.Outbox.PollIntervalMS = 5
	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logger.Nop(),
		Store:    fakePinger{},
		Source:   source,
		Registry: reg,
		Broker:   brk,
		Metrics:  m,
	})
	require.NoError(t, err)
	return service
}

func orderCreatedRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderCreatedEvent{
		OrderID:    orderID,
		InvoiceIDs: []uuid.UUID{uuid.New()},
		VendorIDs:  []string{"vendor-1"},
		TotalCents: 5200,
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelope,
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

type fakeTracker struct {
	delivered map[uuid.UUID]bool
}

func (f *fakeTracker) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.delivered[eventID] {
		return true, nil
	}
	f.delivered[eventID] = true
	return false, nil
}

func (f *fakeTracker) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(f.delivered, eventID)
	return nil
}

type fakePinger struct{}

func (fakePinger) Ping(context.Context) error { return nil }

type fakeSource struct {
	batches  [][]models.OutboxEvent
	claimErr error
	markErr  error

	claims          int
	lastLease       time.Duration
	lastMaxAttempts int
	published       []uuid.UUID
	failed          []uuid.UUID
	terminal        []uuid.UUID
	dead            []models.OutboxDLQ
}

func (f *fakeSource) Claim(_ context.Context, _ int, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error) {
	f.claims++
	f.lastLease = lease
	f.lastMaxAttempts = maxAttempts
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSource) MarkPublished(_ context.Context, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeSource) MarkFailed(_ context.Context, id uuid.UUID, _ error) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeSource) MarkTerminal(_ context.Context, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

func (f *fakeSource) DeadLetter(_ context.Context, entry models.OutboxDLQ) error {
	f.dead = append(f.dead, entry)
	return nil
}

func (f *fakeSource) DeletePublishedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type sentMessage struct {
	topic string
	msg   brokerMessage
}

type fakeBroker struct {
	name    string
	errs    []error
	pingErr error
	sent    []sentMessage
}

func (f *fakeBroker) Name() string {
	if f.name == "" {
		return config.BrokerPubSub
	}
	return f.name
}

func (f *fakeBroker) Ping(context.Context) error { return f.pingErr }

func (f *fakeBroker) Publish(_ context.Context, topic string, msg brokerMessage) error {
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, sentMessage{topic: topic, msg: msg})
	}
	return err
}

func (f *fakeBroker) Close() error { return nil }

type fakeKafkaWriter struct {
	msgs []kafka.Message
}

func (f *fakeKafkaWriter) Publish(_ context.Context, msg kafka.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeKafkaWriter) Ping(context.Context) error { return nil }

func (f *fakeKafkaWriter) Close() error { return nil }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Close() error { return nil }

type fakePublisher struct {
	calls int
	err   error
}

func (f *fakePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	f.calls++
	return fakePublishResult{err: f.err}
}

type fakePublishResult struct {
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "msg-id", nil
}
