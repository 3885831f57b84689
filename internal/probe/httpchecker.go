package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

// Check issues exactly one GET. Any failure to obtain a 2xx collapses to Down.
func (h *HTTPChecker) Check(ctx context.Context, target string) Outcome {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{Status: domain.StatusDown, Reason: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := domain.ClampLatency(time.Since(start))
	if err != nil {
		return Outcome{Status: domain.StatusDown, LatencyMS: latency, Reason: err.Error()}
	}
	// drain a little so the connection can be reused
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
	resp.Body.Close()

	status := domain.StatusDown
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status = domain.StatusUp
	}
	return Outcome{
		Status:     status,
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
		Reason:     resp.Status,
	}
}
