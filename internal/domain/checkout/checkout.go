// Package checkout drives one basket through its reservation lifecycle:
// items are reserved while the session is open, then either committed as
// sold or released back to stock exactly once.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a session.
type Status int

const (
	StatusOpen Status = iota
	StatusCommitted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusCommitted:
		return "committed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Final reports whether no further transition is possible.
func (s Status) Final() bool {
	return s == StatusCommitted || s == StatusCancelled
}

// Sentinel errors for session operations.
var (
	ErrAlreadyFinalized = errors.New("checkout already finalized")
	ErrNoConverter      = errors.New("no currency converter configured")
)

// TransitionError is returned when an operation needs an open session but the
// session has already been committed or cancelled.
type TransitionError struct {
	Op    string
	State Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s: checkout already %s", e.Op, e.State)
}

// Is makes errors.Is(err, ErrAlreadyFinalized) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrAlreadyFinalized
}

// Outcome describes a finished checkout for the metrics recorder.
type Outcome struct {
	SessionID string
	Success   bool
	ErrorType string
	Items     []string
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	Duration  time.Duration
}

// Recorder receives checkout events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordCheckout(ctx context.Context, o Outcome)
	RecordError(ctx context.Context, kind, message string)
	RecordRuleApplication(ctx context.Context, rule string, amount decimal.Decimal)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) RecordCheckout(context.Context, Outcome)                        {}
func (NopRecorder) RecordError(context.Context, string, string)                    {}
func (NopRecorder) RecordRuleApplication(context.Context, string, decimal.Decimal) {}
