package outbox

// DispatchErrorKind classifies a publish failure as worth retrying or not.
// Transport implementations (internal/transport/kafkatransport) decide this
// classification; the outbox state machine only acts on it.
type DispatchErrorKind string

const (
	DispatchTransient DispatchErrorKind = "transient"
	DispatchPermanent DispatchErrorKind = "permanent"
)

// DispatchError is the cause recorded on Nack, mirroring the Rust
// original's OutboxDispatchError enum. Code is a short stable identifier
// for the failure cause (e.g. "request_timed_out"); Message is free text
// for diagnostics. Neither participates in the transient/permanent
// decision, which is fixed at construction by the caller.
type DispatchError struct {
	Kind    DispatchErrorKind
	Code    string
	Message string
}

// TransientDispatchError marks a failure the relay should retry later.
func TransientDispatchError(code, message string) DispatchError {
	return DispatchError{Kind: DispatchTransient, Code: code, Message: message}
}

// PermanentDispatchError marks a failure the relay should not retry;
// Nack dead-letters the record regardless of remaining attempt budget.
func PermanentDispatchError(code, message string) DispatchError {
	return DispatchError{Kind: DispatchPermanent, Code: code, Message: message}
}

func (e DispatchError) Error() string { return string(e.Kind) + ": " + e.Code + ": " + e.Message }
