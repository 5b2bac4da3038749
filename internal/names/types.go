package names

// AggregateType names the kind of aggregate an event belongs to
// (e.g. "order", "shipment"). Bounded to 100 chars: aggregate types tend
// to be namespaced (e.g. "billing_invoice").
type AggregateType string

// NewAggregateType validates and constructs an AggregateType.
func NewAggregateType(value string) (AggregateType, error) {
	if err := validate("aggregate_type", value, long); err != nil {
		return "", err
	}

	return AggregateType(value), nil
}

func (a AggregateType) String() string { return string(a) }

// EventName names a domain event kind (e.g. "order_placed").
type EventName string

// NewEventName validates and constructs an EventName.
func NewEventName(value string) (EventName, error) {
	if err := validate("event_name", value, long); err != nil {
		return "", err
	}

	return EventName(value), nil
}

func (n EventName) String() string { return string(n) }

// CommandName names a command kind (e.g. "place_order").
type CommandName string

// NewCommandName validates and constructs a CommandName.
func NewCommandName(value string) (CommandName, error) {
	if err := validate("command_name", value, long); err != nil {
		return "", err
	}

	return CommandName(value), nil
}

func (n CommandName) String() string { return string(n) }

// SagaName names a saga definition (e.g. "order_fulfillment").
type SagaName string

// NewSagaName validates and constructs a SagaName.
func NewSagaName(value string) (SagaName, error) {
	if err := validate("saga_name", value, short); err != nil {
		return "", err
	}

	return SagaName(value), nil
}

func (n SagaName) String() string { return string(n) }

// ProjectorName names a read-model projector (e.g. "order_summary").
type ProjectorName string

// NewProjectorName validates and constructs a ProjectorName.
func NewProjectorName(value string) (ProjectorName, error) {
	if err := validate("projector_name", value, short); err != nil {
		return "", err
	}

	return ProjectorName(value), nil
}

func (n ProjectorName) String() string { return string(n) }

// RelationName names a ReBAC relation (e.g. "owner", "viewer"). The
// authorization engine itself is out of scope, but request_context carries
// relation names through the envelope (spec.md §3).
type RelationName string

// NewRelationName validates and constructs a RelationName.
func NewRelationName(value string) (RelationName, error) {
	if err := validate("relation_name", value, short); err != nil {
		return "", err
	}

	return RelationName(value), nil
}

func (n RelationName) String() string { return string(n) }

// SubjectKind names the kind of principal in a request_context
// (e.g. "user", "service_account").
type SubjectKind string

// NewSubjectKind validates and constructs a SubjectKind.
func NewSubjectKind(value string) (SubjectKind, error) {
	if err := validate("subject_kind", value, short); err != nil {
		return "", err
	}

	return SubjectKind(value), nil
}

func (k SubjectKind) String() string { return string(k) }

// ConsumerGroup names a transport consumer group a Worker Loop subscribes
// under (spec.md §4.10). Validated the same way as the other names so a
// group id accidentally carrying transport-reserved characters is rejected
// at construction rather than surfacing as an opaque broker error.
type ConsumerGroup string

// NewConsumerGroup validates and constructs a ConsumerGroup.
func NewConsumerGroup(value string) (ConsumerGroup, error) {
	if err := validate("consumer_group", value, short); err != nil {
		return "", err
	}

	return ConsumerGroup(value), nil
}

func (g ConsumerGroup) String() string { return string(g) }
