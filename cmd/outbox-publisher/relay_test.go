package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/config"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/outbox/registry"
)

func TestDrainKeepsGoingAfterTransientFailure(t *testing.T) {
	first, second := evaluationRow(t, 0), evaluationRow(t, 0)
	store := &memoryEvents{rows: []models.OutboxEvent{first, second}}
	broker := &scriptedPublisher{errs: []error{errors.New("unavailable"), nil}}
	relay := newTestRelay(t, store, &memoryDLQ{}, resolveTo("evaluation-requests"), broker, config.OutboxConfig{})

	handled, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Equal(t, []string{"evaluation-requests", "evaluation-requests"}, broker.topics)
}

func TestDrainDeadLettersUnresolvableRows(t *testing.T) {
	row := evaluationRow(t, 0)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	dlq := &memoryDLQ{}
	badPayload := &stubResolver{err: registry.Permanent(errors.New("invalid payload"))}
	relay := newTestRelay(t, store, dlq, badPayload, &scriptedPublisher{}, config.OutboxConfig{})

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, row.ID, dlq.entries[0].event.ID)
	assert.Equal(t, enums.DeadLetterNonRetryable, dlq.entries[0].reason)
	assert.Equal(t, []uuid.UUID{row.ID}, store.terminal)
	assert.Empty(t, store.published)
}

func TestDrainDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	row := evaluationRow(t, 0)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	dlq := &memoryDLQ{}
	relay := newTestRelay(t, store, dlq, resolveTo("ledger-events"), nil, config.OutboxConfig{})

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterNonRetryable, dlq.entries[0].reason)
	assert.ErrorContains(t, dlq.entries[0].cause, "ledger-events")
}

func TestDrainDeadLettersOnFinalAttempt(t *testing.T) {
	row := evaluationRow(t, 1)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	dlq := &memoryDLQ{}
	broker := &scriptedPublisher{errs: []error{errors.New("deadline exceeded")}}
	relay := newTestRelay(t, store, dlq, resolveTo("evaluation-requests"), broker, config.OutboxConfig{MaxAttempts: 2})

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterMaxAttempts, dlq.entries[0].reason)
	assert.Empty(t, store.failed)
}

func TestDrainReportsEmptyBatch(t *testing.T) {
	relay := newTestRelay(t, &memoryEvents{}, &memoryDLQ{}, resolveTo("x"), &scriptedPublisher{}, config.OutboxConfig{})
	handled, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestRunStopsOnCancel(t *testing.T) {
	relay := newTestRelay(t, &memoryEvents{}, &memoryDLQ{}, resolveTo("x"), &scriptedPublisher{}, config.OutboxConfig{PollIntervalMS: 5})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, relay.Run(ctx), context.DeadlineExceeded)
}

func TestTopicCacheDoesNotRememberMissingTopics(t *testing.T) {
	source := &countingSource{}
	cache := newTopicCache(source)

	assert.Nil(t, cache.publisher("ledger-events"))
	assert.Nil(t, cache.publisher("ledger-events"))
	assert.Equal(t, 2, source.lookups)

	cache.stop()
	var empty *topicCache
	empty.stop()
}

func newTestRelay(t *testing.T, store eventStore, dlq deadLetters, res resolver, broker *scriptedPublisher, cfg config.OutboxConfig) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Config:      cfg,
		Logger:      logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard}),
		DB:          inlineTx{},
		PubSub:      &countingSource{},
		Events:      store,
		DeadLetters: dlq,
		Registry:    res,
		Topics: func(topic string) publisher {
			if broker == nil {
				return nil
			}
			broker.topics = append(broker.topics, topic)
			return broker
		},
	})
	require.NoError(t, err)
	return relay
}

func evaluationRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    id,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID: id,
		EventRef: models.EventRef{
			EventType:     enums.EventEvaluationRequested,
			AggregateType: enums.AggregateSubmission,
			AggregateID:   uuid.New(),
		},
		Payload:      payload,
		AttemptCount: attempts,
	}
}

func resolveTo(topic string) *stubResolver {
	return &stubResolver{topic: topic}
}

type stubResolver struct {
	topic string
	err   error
}

func (s *stubResolver) Resolve(event models.OutboxEvent) (*registry.Resolved, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &registry.Resolved{
		Route:    registry.Route{Topic: s.topic, Aggregate: event.AggregateType},
		Envelope: outbox.Envelope{EventID: event.ID, OccurredAt: time.Now()},
	}, nil
}

type memoryEvents struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (m *memoryEvents) Claim(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return m.rows, nil
}

func (m *memoryEvents) MarkPublished(_ *gorm.DB, id uuid.UUID, _ time.Time) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memoryEvents) RecordFailure(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memoryEvents) Retire(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.terminal = append(m.terminal, id)
	return nil
}

type parked struct {
	event  models.OutboxEvent
	reason enums.DeadLetterReason
	cause  error
}

type memoryDLQ struct {
	entries []parked
}

func (m *memoryDLQ) Park(_ *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, _ time.Time) error {
	m.entries = append(m.entries, parked{event: event, reason: reason, cause: cause})
	return nil
}

type inlineTx struct{}

func (inlineTx) Ping(context.Context) error { return nil }

func (inlineTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type countingSource struct {
	lookups int
}

func (c *countingSource) Ping(context.Context) error { return nil }

func (c *countingSource) Publisher(string) *gcppubsub.Publisher {
	c.lookups++
	return nil
}

type scriptedPublisher struct {
	errs   []error
	topics []string
}

func (s *scriptedPublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	return staticResult{err: err}
}

type staticResult struct {
	err error
}

func (s staticResult) Get(context.Context) (string, error) {
	return "msg-id", s.err
}
