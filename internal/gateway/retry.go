package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/willingning/minote-sync/internal/apperr"
)

// errTransient tags failures worth retrying. Wrapped alongside the
// cause so callers can still inspect it.
var errTransient = errors.New("transient")

// transient marks err as retryable.
func transient(err error) error {
	return fmt.Errorf("%w: %w", errTransient, err)
}

// Backoff is an explicit bounded retry schedule: MaxAttempts retries
// after the initial try, with delays Base, 2*Base, 4*Base, ... capped
// at Max. Modeling it as data keeps limits directly testable.
type Backoff struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// Delay returns the wait before retry attempt n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base << n
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

// Retry runs fn, retrying transient failures per the schedule. The
// context is honoured during backoff waits. On exhaustion the last
// cause is wrapped in apperr.ErrNetwork; non-transient errors return
// immediately.
func Retry(ctx context.Context, b Backoff, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, errTransient) {
			return err
		}
		if attempt >= b.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}
	return fmt.Errorf("%w: %d attempts exhausted: %v", apperr.ErrNetwork, b.MaxAttempts+1, err)
}
