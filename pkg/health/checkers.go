package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Verifier is implemented by components that can validate their own
// internal consistency.
type Verifier interface {
	Verify() error
}

// VerifyCheck fails while v reports a consistency error.
func VerifyCheck(v Verifier) CheckFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.Verify(); err != nil {
			return errors.Wrap(err, "verify")
		}
		return nil
	}
}
