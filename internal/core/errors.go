package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a daemon call failure.
type ErrorKind int

const (
	// KindUnreachable covers refused connections, DNS failures and timeouts.
	KindUnreachable ErrorKind = iota
	// KindUpstreamRejected means the daemon answered with a non-2xx status.
	KindUpstreamRejected
	// KindMalformedResponse means the daemon answered 2xx with a body that
	// does not match the expected shape.
	KindMalformedResponse
)

// String returns the kind as a metric/log label.
func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return OutcomeUnreachable
	case KindUpstreamRejected:
		return OutcomeRejected
	case KindMalformedResponse:
		return OutcomeMalformed
	default:
		return "unknown"
	}
}

// GatewayError is returned by every failed daemon call.
type GatewayError struct {
	Kind      ErrorKind
	Operation string
	Status    int // upstream HTTP status, set for KindUpstreamRejected
	Cause     error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Kind == KindUpstreamRejected:
		return fmt.Sprintf("ollama %s: upstream rejected request with status %d", e.Operation, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("ollama %s: %s: %v", e.Operation, e.Kind, e.Cause)
	default:
		return fmt.Sprintf("ollama %s: %s", e.Operation, e.Kind)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// GatewayErrorKind extracts the kind of a gateway failure. ok is false when
// err does not wrap a *GatewayError.
func GatewayErrorKind(err error) (kind ErrorKind, ok bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind, true
	}
	return 0, false
}
