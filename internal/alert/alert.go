package alert

import (
	"context"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Publisher delivers one downtime notification to an external channel.
type Publisher interface {
	Publish(ctx context.Context, n domain.DowntimeNotification) error
}

// Multi fans a notification out to every channel. All channels are tried;
// the returned error combines every failure.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, n domain.DowntimeNotification) error {
	var err error
	for _, p := range m {
		if p == nil {
			continue
		}
		err = multierr.Append(err, p.Publish(ctx, n))
	}
	return err
}

// Nop drops notifications. Used when no alert channel is configured.
type Nop struct{}

func (Nop) Publish(context.Context, domain.DowntimeNotification) error { return nil }
