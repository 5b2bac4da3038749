package event

import (
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
)

// RequestContext carries the principal, tenant, and tracing fingerprints
// that originated a message, as required by spec.md §3. The authorization
// engine itself is out of scope; this struct only transports the fields it
// would need.
type RequestContext struct {
	SubjectId   ids.SubjectId
	SubjectKind names.SubjectKind
	TenantId    ids.TenantId
	TraceID     string
	SpanID      string
}
