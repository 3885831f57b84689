package influx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

const queryCSV = `#datatype,string,long,dateTime:RFC3339,double,string,string,string,string,string
#group,false,false,false,false,true,true,true,true,true
#default,_result,,,,,,,,
,result,table,_time,_value,_field,_measurement,region_id,status,target_id
,,0,2025-06-07T18:32:38Z,42,latency_ms,uptime_tick,europe,Up,T1
,,0,2025-06-07T18:33:38Z,51,latency_ms,uptime_tick,europe,Up,T1

`

func TestStore_WriteSendsLineProtocol(t *testing.T) {
	var body, path, bucket string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		bucket = r.URL.Query().Get("bucket")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := New(Config{URL: srv.URL, Token: "tok", Org: "org", Bucket: "uptime_ticks", Timeout: time.Second})
	defer s.Close()

	at := time.Date(2025, 6, 7, 18, 32, 38, 0, time.UTC)
	sample := domain.SampleFromResult(domain.ProbeResult{
		TargetID: "T1", RegionID: "europe", Status: domain.StatusUp, LatencyMS: 42, ObservedAt: at,
	})
	if err := s.Write(context.Background(), sample); err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != "/api/v2/write" || bucket != "uptime_ticks" {
		t.Fatalf("unexpected request path=%q bucket=%q", path, bucket)
	}
	for _, part := range []string{"uptime_tick,", "target_id=T1", "region_id=europe", "status=Up", "latency_ms=42i"} {
		if !strings.Contains(body, part) {
			t.Fatalf("line protocol %q missing %q", body, part)
		}
	}
}

func TestStore_WriteSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal error","message":"boom"}`))
	}))
	defer srv.Close()

	s := New(Config{URL: srv.URL, Token: "tok", Org: "org", Bucket: "b"})
	defer s.Close()
	if err := s.Write(context.Background(), domain.MetricSample{
		Measurement: "m", Fields: map[string]int64{"v": 1}, Timestamp: time.Now(),
	}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestStore_QueryReturnsRows(t *testing.T) {
	var script string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		script = string(b)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(queryCSV))
	}))
	defer srv.Close()

	s := New(Config{URL: srv.URL, Token: "tok", Org: "org", Bucket: "uptime_ticks"})
	defer s.Close()

	f, _ := tsdb.Select(domain.Measurement).Field(domain.FieldLatency).Tag(domain.TagTargetID, "T1").Since(24 * time.Hour).Build()
	rows, err := s.Query(context.Background(), f)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(script, "uptime_ticks") {
		t.Fatalf("flux not sent: %s", script)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	if _, ok := rows[0][tsdb.KeyTime].(time.Time); !ok {
		t.Fatalf("_time not parsed as time: %T", rows[0][tsdb.KeyTime])
	}
	if v, ok := rows[1][tsdb.KeyValue].(float64); !ok || v != 51 {
		t.Fatalf("_value=%v", rows[1][tsdb.KeyValue])
	}
	if rows[0]["status"] != "Up" {
		t.Fatalf("status tag missing: %v", rows[0])
	}
}

func TestStore_QueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid","message":"compilation failed"}`))
	}))
	defer srv.Close()

	s := New(Config{URL: srv.URL, Token: "tok", Org: "org", Bucket: "b"})
	defer s.Close()
	f, _ := tsdb.Select(domain.Measurement).Since(time.Hour).Build()
	if _, err := s.Query(context.Background(), f); err == nil {
		t.Fatalf("expected query error")
	}
}
