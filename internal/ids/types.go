package ids

// Each identifier below is a distinct Go type wrapping rawID so the
// compiler rejects passing an EventId where an OutboxId is expected, even
// though both are UUIDv7 strings underneath.

// EventId identifies a single domain event.
type EventId struct{ rawID }

// NewEventId generates a fresh EventId.
func NewEventId() (EventId, error) {
	r, err := newRaw()

	return EventId{r}, err
}

// ParseEventId parses and validates an EventId from its string form.
func ParseEventId(s string) (EventId, error) {
	r, err := parseRaw(s)

	return EventId{r}, err
}

// OutboxId identifies a row in an outbox table (event or command).
type OutboxId struct{ rawID }

// NewOutboxId generates a fresh OutboxId.
func NewOutboxId() (OutboxId, error) {
	r, err := newRaw()

	return OutboxId{r}, err
}

// ParseOutboxId parses and validates an OutboxId from its string form.
func ParseOutboxId(s string) (OutboxId, error) {
	r, err := parseRaw(s)

	return OutboxId{r}, err
}

// MessageId identifies an envelope as it crosses the transport boundary;
// it is also the idempotency key for commands.
type MessageId struct{ rawID }

// NewMessageId generates a fresh MessageId.
func NewMessageId() (MessageId, error) {
	r, err := newRaw()

	return MessageId{r}, err
}

// ParseMessageId parses and validates a MessageId from its string form.
func ParseMessageId(s string) (MessageId, error) {
	r, err := parseRaw(s)

	return MessageId{r}, err
}

// CausationId names the message that directly caused another message.
type CausationId struct{ rawID }

// NewCausationId generates a fresh CausationId.
func NewCausationId() (CausationId, error) {
	r, err := newRaw()

	return CausationId{r}, err
}

// ParseCausationId parses and validates a CausationId from its string form.
func ParseCausationId(s string) (CausationId, error) {
	r, err := parseRaw(s)

	return CausationId{r}, err
}

// CorrelationId names the business workflow a message belongs to. It also
// doubles as the ordering key for the command outbox.
type CorrelationId struct{ rawID }

// NewCorrelationId generates a fresh CorrelationId.
func NewCorrelationId() (CorrelationId, error) {
	r, err := newRaw()

	return CorrelationId{r}, err
}

// ParseCorrelationId parses and validates a CorrelationId from its string form.
func ParseCorrelationId(s string) (CorrelationId, error) {
	r, err := parseRaw(s)

	return CorrelationId{r}, err
}

// SagaInstanceId identifies one running instance of a saga.
type SagaInstanceId struct{ rawID }

// NewSagaInstanceId generates a fresh SagaInstanceId.
func NewSagaInstanceId() (SagaInstanceId, error) {
	r, err := newRaw()

	return SagaInstanceId{r}, err
}

// ParseSagaInstanceId parses and validates a SagaInstanceId from its string form.
func ParseSagaInstanceId(s string) (SagaInstanceId, error) {
	r, err := parseRaw(s)

	return SagaInstanceId{r}, err
}

// TenantId identifies the tenant a request_context belongs to.
type TenantId struct{ rawID }

// NewTenantId generates a fresh TenantId.
func NewTenantId() (TenantId, error) {
	r, err := newRaw()

	return TenantId{r}, err
}

// ParseTenantId parses and validates a TenantId from its string form.
func ParseTenantId(s string) (TenantId, error) {
	r, err := parseRaw(s)

	return TenantId{r}, err
}

// SubjectId identifies the principal a request_context was issued for.
type SubjectId struct{ rawID }

// NewSubjectId generates a fresh SubjectId.
func NewSubjectId() (SubjectId, error) {
	r, err := newRaw()

	return SubjectId{r}, err
}

// ParseSubjectId parses and validates a SubjectId from its string form.
func ParseSubjectId(s string) (SubjectId, error) {
	r, err := parseRaw(s)

	return SubjectId{r}, err
}
