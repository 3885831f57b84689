package domain

import "time"

// Names shared by the write path and the query path.
const (
	Measurement  = "uptime_tick"
	FieldLatency = "latency_ms"

	TagTargetID = "target_id"
	TagRegionID = "region_id"
	TagStatus   = "status"
)

// MetricSample is the durable, append-only projection of a ProbeResult.
type MetricSample struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]int64
	Timestamp   time.Time
}

func SampleFromResult(r ProbeResult) MetricSample {
	return MetricSample{
		Measurement: Measurement,
		Tags: map[string]string{
			TagTargetID: string(r.TargetID),
			TagRegionID: r.RegionID,
			TagStatus:   string(r.Status),
		},
		Fields:    map[string]int64{FieldLatency: r.LatencyMS},
		Timestamp: r.ObservedAt,
	}
}

// DowntimeNotification is published once per Down result. Consumers
// deduplicate on (TargetID, ObservedAt).
type DowntimeNotification struct {
	TargetID   TargetID  `json:"target_id"`
	RegionID   string    `json:"region_id"`
	Status     Status    `json:"status"`
	LatencyMS  int64     `json:"latency_ms"`
	ObservedAt time.Time `json:"observed_at"`
}

// NotificationFromResult returns false for anything that is not Down.
func NotificationFromResult(r ProbeResult) (DowntimeNotification, bool) {
	if !r.Down() {
		return DowntimeNotification{}, false
	}
	return DowntimeNotification{
		TargetID:   r.TargetID,
		RegionID:   r.RegionID,
		Status:     r.Status,
		LatencyMS:  r.LatencyMS,
		ObservedAt: r.ObservedAt,
	}, true
}

type TimeSeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// TargetStatus is the most recent sample seen for a target.
type TargetStatus struct {
	TargetID  TargetID  `json:"target_id"`
	RegionID  string    `json:"region_id,omitempty"`
	Status    Status    `json:"status"`
	LatencyMS float64   `json:"latency_ms"`
	Time      time.Time `json:"time"`
}
