// README: Bounded exponential backoff for transient store errors. Defaults
// match the operational policy used against quota limits: 2s initial,
// doubling to a 60s cap, at most 10 attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Policy struct {
	Initial  time.Duration
	Cap      time.Duration
	Attempts int
}

func DefaultPolicy() Policy {
	return Policy{Initial: 2 * time.Second, Cap: 60 * time.Second, Attempts: 10}
}

// Do runs op, retrying on transient errors with exponential backoff until
// the attempt budget is spent or ctx ends. Non-transient errors are returned
// immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	if p.Attempts <= 0 {
		p = DefaultPolicy()
	}
	backoff := p.Initial
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.Cap {
			backoff = p.Cap
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", p.Attempts, lastErr)
}

// IsTransient reports whether a store error is worth retrying: quota
// exhaustion, unavailability, deadline expiry or an aborted transaction.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}
