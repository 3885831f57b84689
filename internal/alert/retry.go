package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Retry gives a publisher at-least-once delivery semantics: failed attempts
// are repeated with a fixed backoff until one succeeds, attempts run out or
// ctx ends. Duplicates are possible and left to consumers.
type Retry struct {
	Inner    Publisher
	Attempts int
	Backoff  time.Duration
}

func (r *Retry) Publish(ctx context.Context, n domain.DowntimeNotification) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if last = r.Inner.Publish(ctx, n); last == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(r.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("publish aborted after %d attempt(s): %w", i+1, last)
		case <-t.C:
		}
	}
	return fmt.Errorf("publish failed after %d attempt(s): %w", attempts, last)
}

// RetryEach wraps every channel in its own Retry. A channel that keeps
// failing is retried alone and never causes a repeat delivery on the others.
func RetryEach(attempts int, backoff time.Duration, chans ...Publisher) Multi {
	out := make(Multi, 0, len(chans))
	for _, p := range chans {
		if p == nil {
			continue
		}
		out = append(out, &Retry{Inner: p, Attempts: attempts, Backoff: backoff})
	}
	return out
}
