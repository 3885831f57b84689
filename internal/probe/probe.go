package probe

import (
	"context"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Outcome is the classified result of one reachability check.
//
// StatusCode is 0 when no HTTP response was received (transport, DNS, TLS
// or timeout failure); Reason then carries the error text.
type Outcome struct {
	Status     domain.Status
	StatusCode int
	LatencyMS  int64
	Reason     string
}

// TransportFailure reports whether the check never got an HTTP response.
func (o Outcome) TransportFailure() bool {
	return o.Status == domain.StatusDown && o.StatusCode == 0
}

// Checker performs a single check for a given target URL.
type Checker interface {
	Check(ctx context.Context, target string) Outcome
}
