package domain

import (
	"errors"
	"time"
)

var (
	ErrRegistryUnavailable = errors.New("registry unavailable")
	ErrNotFound            = errors.New("not found")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrDuplicate           = errors.New("already exists")
)

type TargetID string

// Target is a monitored endpoint as handed out by the registry.
// The pipeline only ever reads snapshots of it.
type Target struct {
	ID        TargetID  `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name,omitempty"`
	RegionID  string    `json:"region_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Status string

const (
	StatusUp   Status = "Up"
	StatusDown Status = "Down"
)

// ParseStatus accepts the two stored spellings and rejects everything else.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusUp:
		return StatusUp, true
	case StatusDown:
		return StatusDown, true
	}
	return "", false
}

// ProbeResult is the outcome of one probe of one target in one round.
type ProbeResult struct {
	TargetID   TargetID  `json:"target_id"`
	RegionID   string    `json:"region_id"`
	Status     Status    `json:"status"`
	LatencyMS  int64     `json:"latency_ms"`
	ObservedAt time.Time `json:"observed_at"`
}

func (r ProbeResult) Down() bool { return r.Status == StatusDown }

// ClampLatency converts an elapsed duration into whole milliseconds, never negative.
func ClampLatency(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
