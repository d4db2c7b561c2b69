package enums

// OutboxAggregateType names the row an outbox event is about.
type OutboxAggregateType string

const (
	AggregateSubmission OutboxAggregateType = "submission"
	AggregateAccount    OutboxAggregateType = "account"
)

var aggregateTypes = members[OutboxAggregateType]{AggregateSubmission, AggregateAccount}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType doubles as the Pub/Sub event_type attribute.
type OutboxEventType string

const (
	EventEvaluationRequested OutboxEventType = "evaluation_requested"
	EventCreditsPurchased    OutboxEventType = "credits_purchased"
)

var eventTypes = members[OutboxEventType]{EventEvaluationRequested, EventCreditsPurchased}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

// DeadLetterReason says why the relay gave up on an event.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)

var deadLetterReasons = members[DeadLetterReason]{DeadLetterMaxAttempts, DeadLetterNonRetryable}

func (r DeadLetterReason) IsValid() bool { return deadLetterReasons.has(r) }
