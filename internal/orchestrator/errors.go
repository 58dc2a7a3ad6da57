package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
	"github.com/yourorg/linepay-preapproval/internal/policy"
)

var (
	ErrInvalidInput          = errors.New("invalid lifecycle input")
	ErrReservationFailed     = errors.New("reservation failed")
	ErrAuthorizationTimedOut = errors.New("authorization timed out")
	ErrDataShape             = errors.New("unexpected provider response shape")
	ErrChargeFailed          = errors.New("pre-approved charge failed")
	ErrChargeDenied          = policy.ErrDenied
)

// DataShapeError reports a provider response the lifecycle cannot continue
// from, such as a confirm without a reg key.
type DataShapeError struct {
	Operation string
	Field     string
	Payload   adapter.Payload
	Err       error
}

func (e *DataShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: missing %s: %v", e.Operation, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: missing %s", e.Operation, e.Field)
}

func (e *DataShapeError) Is(target error) bool { return target == ErrDataShape }

func (e *DataShapeError) Unwrap() error { return e.Err }

// Kind classifies err for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrReservationFailed):
		return "reservation_failed"
	case errors.Is(err, ErrAuthorizationTimedOut):
		return "authorization_timed_out"
	case errors.Is(err, ErrDataShape):
		return "data_shape"
	case errors.Is(err, ErrChargeDenied):
		return "charge_denied"
	case errors.Is(err, ErrChargeFailed):
		return "charge_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
