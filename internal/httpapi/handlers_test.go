package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
	apimw "github.com/hamed0406/uptimeticks/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeticks/internal/live"
	"github.com/hamed0406/uptimeticks/internal/probe"
	"github.com/hamed0406/uptimeticks/internal/query"
	regmem "github.com/hamed0406/uptimeticks/internal/registry/memory"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
	tsmem "github.com/hamed0406/uptimeticks/internal/tsdb/memory"
)

// ---- test helpers ----

type fakeChecker struct {
	out probe.Outcome
}

func (f *fakeChecker) Check(_ context.Context, _ string) probe.Outcome {
	// always return the same result so tests are deterministic
	return f.out
}

// stallingChecker never gets a response before its deadline.
type stallingChecker struct{}

func (stallingChecker) Check(ctx context.Context, _ string) probe.Outcome {
	<-ctx.Done()
	return probe.Outcome{Status: domain.StatusDown, Reason: "timeout"}
}

// ctxResolver resolves everything to loopback unless its context is done.
type ctxResolver struct{}

func (ctxResolver) LookupIP(ctx context.Context, _, _ string) ([]net.IP, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []net.IP{net.IPv4(127, 0, 0, 1)}, nil
}

func (ctxResolver) LookupCNAME(context.Context, string) (string, error) {
	return "", errors.New("no cname")
}

func (ctxResolver) LookupNS(context.Context, string) ([]*net.NS, error) {
	return nil, errors.New("no ns")
}

type failingQuerier struct{}

func (failingQuerier) Query(context.Context, tsdb.Filter) ([]tsdb.Row, error) {
	return nil, errors.New("influx: connection refused")
}

type env struct {
	srv    *Server
	ts     *httptest.Server
	series *tsmem.Store
}

func setup(t *testing.T, chk probe.Checker, q tsdb.Querier) *env {
	t.Helper()
	series := tsmem.New()
	if q == nil {
		q = series
	}
	srv := NewServer(zap.NewNop(), regmem.New(), query.NewService(q, nil), chk)
	srv.Hub = live.NewHub(8)

	keys := apimw.NewKeys([]string{"pub_test"}, []string{"adm_test"})
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, Limits{10_000, 10_000, 10_000, 10_000}))
	t.Cleanup(ts.Close)
	return &env{srv: srv, ts: ts, series: series}
}

func (e *env) do(t *testing.T, method, path, key string, body []byte) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, e.ts.URL+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func upChecker() *fakeChecker {
	return &fakeChecker{out: probe.Outcome{Status: domain.StatusUp, StatusCode: 200, LatencyMS: 12}}
}

func (e *env) seed(t *testing.T, id, region string, status domain.Status, ago time.Duration) {
	t.Helper()
	err := e.series.Write(context.Background(), domain.SampleFromResult(domain.ProbeResult{
		TargetID: domain.TargetID(id), RegionID: region, Status: status,
		LatencyMS: 10, ObservedAt: time.Now().Add(-ago),
	}))
	if err != nil {
		t.Fatal(err)
	}
}

// ---- tests ----

func TestAddTarget_OK_Duplicate_Invalid(t *testing.T) {
	e := setup(t, upChecker(), nil)

	// 1) Add OK
	resp := e.do(t, http.MethodPost, "/api/targets", "adm_test", []byte(`{"url":"https://example.com","region_id":"europe"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var addResp struct {
		Target  domain.Target `json:"target"`
		Summary struct {
			TargetID   string `json:"target_id"`
			Up         bool   `json:"up"`
			HTTPStatus int    `json:"http_status"`
			LatencyMS  int64  `json:"latency_ms"`
		} `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&addResp); err != nil {
		t.Fatalf("decode add resp: %v", err)
	}
	if addResp.Summary.HTTPStatus != 200 || !addResp.Summary.Up {
		t.Fatalf("expected up=true & status=200, got %+v", addResp.Summary)
	}
	if addResp.Target.URL != "https://example.com" || addResp.Target.RegionID != "europe" {
		t.Fatalf("unexpected target %+v", addResp.Target)
	}
	if addResp.Summary.TargetID != string(addResp.Target.ID) {
		t.Fatalf("summary not tied to target")
	}

	// 2) Duplicate after normalization should be 409
	if resp := e.do(t, http.MethodPost, "/api/targets", "adm_test", []byte(`{"url":"https://EXAMPLE.com/"}`)); resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", resp.StatusCode)
	}

	// 3) Invalid URL should be 400
	if resp := e.do(t, http.MethodPost, "/api/targets", "adm_test", []byte(`{"url":"ftp://bad"}`)); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid URL, got %d", resp.StatusCode)
	}

	// 4) Public key cannot add
	if resp := e.do(t, http.MethodPost, "/api/targets", "pub_test", []byte(`{"url":"https://other.example"}`)); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403 for public key, got %d", resp.StatusCode)
	}
}

func TestAddTarget_TimedOutCheckStillClassifiesDNS(t *testing.T) {
	e := setup(t, stallingChecker{}, nil)
	e.srv.Resolver = ctxResolver{}
	e.srv.ProbeTimeout = 20 * time.Millisecond

	resp := e.do(t, http.MethodPost, "/api/targets", "adm_test", []byte(`{"url":"https://slow.example"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var body struct {
		Summary struct {
			Up     bool   `json:"up"`
			Reason string `json:"reason"`
		} `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Summary.Up {
		t.Fatalf("stalled check reported up")
	}
	if !strings.Contains(body.Summary.Reason, "dns=RESOLVES") {
		t.Fatalf("want dns=RESOLVES in reason, got %q", body.Summary.Reason)
	}
}

func TestTargets_ListGetDelete(t *testing.T) {
	e := setup(t, upChecker(), nil)
	resp := e.do(t, http.MethodPost, "/api/targets", "adm_test", []byte(`{"url":"https://example.com"}`))
	var added struct {
		Target domain.Target `json:"target"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&added)

	respL := e.do(t, http.MethodGet, "/api/targets", "pub_test", nil)
	var list []domain.Target
	if err := json.NewDecoder(respL.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].URL != "https://example.com" {
		t.Fatalf("unexpected list: %+v", list)
	}

	path := "/api/targets/" + string(added.Target.ID)
	if resp := e.do(t, http.MethodGet, path, "pub_test", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("get: want 200, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodDelete, path, "adm_test", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodGet, path, "pub_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: want 404, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodGet, "/api/targets", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("list without key: want 401, got %d", resp.StatusCode)
	}
}

func TestRegions(t *testing.T) {
	e := setup(t, upChecker(), nil)
	if resp := e.do(t, http.MethodPost, "/api/regions", "adm_test", []byte(`{"id":"europe","name":"Europe"}`)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodPost, "/api/regions", "adm_test", []byte(`{"id":"bad id","name":"X"}`)); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for bad id, got %d", resp.StatusCode)
	}
	resp := e.do(t, http.MethodGet, "/api/regions", "pub_test", nil)
	var rs []domain.Region
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil || len(rs) != 1 || rs[0].ID != "europe" {
		t.Fatalf("regions: %+v err=%v", rs, err)
	}
}

func TestMonitor_RangeAndDowntime(t *testing.T) {
	e := setup(t, upChecker(), nil)
	e.seed(t, "T1", "eu", domain.StatusUp, 3*time.Hour)
	e.seed(t, "T1", "us", domain.StatusUp, 2*time.Hour)
	e.seed(t, "T1", "eu", domain.StatusDown, time.Hour)
	e.seed(t, "T1", "eu", domain.StatusUp, 3*24*time.Hour)

	decode := func(resp *http.Response) []domain.TimeSeriesPoint {
		t.Helper()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}
		var pts []domain.TimeSeriesPoint
		if err := json.NewDecoder(resp.Body).Decode(&pts); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return pts
	}

	if pts := decode(e.do(t, http.MethodGet, "/monitor/T1", "pub_test", nil)); len(pts) != 2 {
		t.Fatalf("default window: want 2 up points, got %d", len(pts))
	}
	if pts := decode(e.do(t, http.MethodGet, "/monitor/T1?days=7", "pub_test", nil)); len(pts) != 3 {
		t.Fatalf("7 days: want 3 up points, got %d", len(pts))
	}
	if pts := decode(e.do(t, http.MethodGet, "/monitor/T1?days=14", "pub_test", nil)); len(pts) != 2 {
		t.Fatalf("14 days falls back to 1: got %d", len(pts))
	}
	if pts := decode(e.do(t, http.MethodGet, "/monitor/T1?region=us", "pub_test", nil)); len(pts) != 1 {
		t.Fatalf("region filter: got %d", len(pts))
	}
	if pts := decode(e.do(t, http.MethodGet, "/monitor/T1/downtime", "pub_test", nil)); len(pts) != 1 {
		t.Fatalf("downtime: got %d", len(pts))
	}
	if pts := decode(e.do(t, http.MethodGet, "/monitor/nobody", "pub_test", nil)); len(pts) != 0 {
		t.Fatalf("unknown target should be empty, got %d", len(pts))
	}
}

func TestMonitor_LastDowntime(t *testing.T) {
	e := setup(t, upChecker(), nil)
	e.seed(t, "T1", "eu", domain.StatusDown, 48*time.Hour)
	e.seed(t, "T1", "eu", domain.StatusDown, 24*time.Hour)

	resp := e.do(t, http.MethodGet, "/monitor/T1/last_downtime", "pub_test", nil)
	var p *domain.TimeSeriesPoint
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil || p == nil {
		t.Fatalf("want a point, got %v err=%v", p, err)
	}
	if d := time.Since(p.Time); d < 23*time.Hour || d > 25*time.Hour {
		t.Fatalf("want most recent downtime, got %s ago", d)
	}

	resp = e.do(t, http.MethodGet, "/monitor/T2/last_downtime", "pub_test", nil)
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	if strings.TrimSpace(body.String()) != "null" {
		t.Fatalf("want null, got %q", body.String())
	}
}

func TestMonitor_Errors(t *testing.T) {
	e := setup(t, upChecker(), failingQuerier{})
	if resp := e.do(t, http.MethodGet, "/monitor/T1", "pub_test", nil); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("store failure: want 502, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodGet, "/monitor/T1/downtime?region=eu%20west", "pub_test", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad region: want 400, got %d", resp.StatusCode)
	}
}

func TestMonitor_Overview(t *testing.T) {
	e := setup(t, upChecker(), nil)
	resp := e.do(t, http.MethodPost, "/api/targets", "adm_test", []byte(`{"url":"https://a.example"}`))
	var added struct {
		Target domain.Target `json:"target"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&added)
	_ = e.do(t, http.MethodPost, "/api/targets", "adm_test", []byte(`{"url":"https://b.example"}`))
	e.seed(t, string(added.Target.ID), "europe", domain.StatusDown, time.Minute)

	resp = e.do(t, http.MethodGet, "/monitor", "pub_test", nil)
	var rows []struct {
		Target domain.Target        `json:"target"`
		Latest *domain.TargetStatus `json:"latest"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	var probed, unprobed int
	for _, r := range rows {
		if r.Latest == nil {
			unprobed++
			continue
		}
		probed++
		if r.Latest.Status != domain.StatusDown {
			t.Fatalf("want Down, got %s", r.Latest.Status)
		}
	}
	if probed != 1 || unprobed != 1 {
		t.Fatalf("probed=%d unprobed=%d", probed, unprobed)
	}
}

func TestLiveFeed(t *testing.T) {
	e := setup(t, upChecker(), nil)
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/monitor/live"
	hdr := http.Header{}
	hdr.Set("X-API-Key", "pub_test")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// wait for the subscription to register
	deadline := time.Now().Add(2 * time.Second)
	for e.srv.Hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	want := domain.ProbeResult{TargetID: "T1", RegionID: "eu", Status: domain.StatusDown, ObservedAt: time.Now().UTC()}
	e.srv.Hub.Broadcast(want)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.ProbeResult
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TargetID != want.TargetID || got.Status != want.Status {
		t.Fatalf("got %+v", got)
	}
}

func TestHealthz(t *testing.T) {
	e := setup(t, upChecker(), nil)
	if resp := e.do(t, http.MethodGet, "/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}
