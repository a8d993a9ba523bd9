package query

import (
	"context"
	"errors"
	"time"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

const (
	// DefaultReadRetries is how many times a failed read is sent again
	DefaultReadRetries = 3
	// DefaultWriteRetries is how many times a failed write is sent again
	DefaultWriteRetries = 1

	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff computes the delay before a retry as min(Base * 2^attempt, Max)
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry number attempt (zero based)
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// IsRetryable reports whether a failed request may be sent again. Network
// errors, 5xx and 429 are retried. Client errors (validation, conflict,
// authorization) and failures that are not API errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		return false
	}
	return apiErr.IsRetryable()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
