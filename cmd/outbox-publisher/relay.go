package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/config"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackIdle        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishDeadline     = 15 * time.Second
	backoffCap          = 10 * time.Second
	backoffJitter       = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Retire(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type deadLetters interface {
	Park(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, at time.Time) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// RelayParams wires the relay; Topics is optional and defaults to a cache
// over PubSub.
type RelayParams struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	PubSub      topicSource
	Events      eventStore
	DeadLetters deadLetters
	Registry    resolver
	Topics      func(topic string) publisher
}

// Relay drains committed outbox rows to Pub/Sub. Every row ends up either
// published, scheduled for another attempt, or dead-lettered.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      topicSource
	events      eventStore
	deadLetters deadLetters
	registry    resolver
	topics      func(topic string) publisher
	cache       *topicCache
	now         func() time.Time

	batchSize   int
	maxAttempts int
	idle        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		events:      p.Events,
		deadLetters: p.DeadLetters,
		registry:    p.Registry,
		topics:      p.Topics,
		now:         time.Now,
		batchSize:   positiveOr(p.Config.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(p.Config.MaxAttempts, fallbackMaxAttempts),
		idle:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.idle <= 0 {
		r.idle = fallbackIdle
	}
	if r.topics == nil {
		r.cache = newTopicCache(p.PubSub)
		r.topics = r.cache.publisher
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is cancelled. Database or broker outages back off
// exponentially; an empty poll waits the idle interval.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	defer r.cache.stop()

	failures := r.failureBackoff()
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		handled, err := r.drain(ctx)
		wait := r.idle
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox drain failed", err)
			wait, _ = failures.Next()
		case handled > 0:
			failures = r.failureBackoff()
			continue
		default:
			failures = r.failureBackoff()
		}
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) failureBackoff() retry.Backoff {
	return retry.WithJitter(backoffJitter, retry.WithCappedDuration(backoffCap, retry.NewExponential(r.idle)))
}

// drain locks one batch and settles each row in the same transaction.
func (r *Relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := r.events.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		for _, event := range batch {
			if err := r.settle(ctx, tx, event); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.DeadLetterNonRetryable, err, logFields(event, nil))
	}
	fields := logFields(event, resolved)

	outcome, reason := r.judge(event, r.publish(ctx, event, resolved))
	switch outcome.kind {
	case verdictPublished:
		if err := r.events.MarkPublished(tx, event.ID, r.now()); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
	case verdictRetry:
		fields["attempt_count"] = event.AttemptCount + 1
		fields["error"] = outcome.err.Error()
		r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed")
		if err := r.events.RecordFailure(tx, event.ID, outcome.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case verdictDeadLetter:
		return r.deadLetter(ctx, tx, event, reason, outcome.err, fields)
	}
	return nil
}

type judgement struct {
	kind verdict
	err  error
}

func (r *Relay) judge(event models.OutboxEvent, publishErr error) (judgement, enums.DeadLetterReason) {
	if publishErr == nil {
		return judgement{kind: verdictPublished}, ""
	}
	if errors.Is(publishErr, registry.ErrPermanent) {
		return judgement{kind: verdictDeadLetter, err: publishErr}, enums.DeadLetterNonRetryable
	}
	if event.AttemptCount+1 >= r.maxAttempts {
		return judgement{kind: verdictDeadLetter, err: fmt.Errorf("max publish attempts reached: %w", publishErr)}, enums.DeadLetterMaxAttempts
	}
	return judgement{kind: verdictRetry, err: publishErr}, ""
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	if err := r.deadLetters.Park(tx, event, reason, cause, r.now()); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	if err := r.events.Retire(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("retire %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.Resolved) error {
	topic := resolved.Route.Topic
	pub := r.topics(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishDeadline)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope),
	})
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := result.Get(ctx)
	return err
}

func messageAttributes(event models.OutboxEvent, envelope outbox.Envelope) map[string]string {
	return map[string]string{
		"event_id":       envelope.EventID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

func logFields(event models.OutboxEvent, resolved *registry.Resolved) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if resolved != nil {
		fields["topic"] = resolved.Route.Topic
		fields["event_id"] = resolved.Envelope.EventID.String()
	}
	return fields
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
