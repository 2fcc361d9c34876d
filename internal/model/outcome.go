// internal/model/outcome.go
package model

type OutcomeKind int

const (
	Delivered OutcomeKind = iota
	Rejected
	TransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case TransportError:
		return "transport_error"
	}
	return "unknown"
}

// Outcome is the classified result of a single send attempt.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       string
	Err        string
}

// Status maps the outcome onto the ledger status vocabulary.
func (o Outcome) Status() string {
	switch o.Kind {
	case Delivered:
		return StatusDelivered
	case Rejected:
		return ErrorStatus(o.StatusCode)
	}
	return StatusException
}

// Details is the ledger detail text for the outcome.
func (o Outcome) Details() string {
	if o.Kind == TransportError {
		return o.Err
	}
	return o.Body
}
