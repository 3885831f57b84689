package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

type flakyPublisher struct {
	mu    sync.Mutex
	fails int
	calls int
	got   []domain.DowntimeNotification
}

func (f *flakyPublisher) Publish(ctx context.Context, n domain.DowntimeNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return errors.New("transient")
	}
	f.got = append(f.got, n)
	return nil
}

func TestMulti_TriesEveryChannel(t *testing.T) {
	a := &flakyPublisher{fails: 1}
	b := &flakyPublisher{}
	c := &flakyPublisher{fails: 1}
	err := Multi{a, nil, b, c}.Publish(context.Background(), downNote())
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("want 2 combined errors, got %d", n)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatalf("each channel should be called once: %d %d %d", a.calls, b.calls, c.calls)
	}
	if len(b.got) != 1 {
		t.Fatalf("healthy channel should receive notification")
	}
}

func TestRetry_SucceedsAfterRetry(t *testing.T) {
	f := &flakyPublisher{fails: 2}
	r := &Retry{Inner: f, Attempts: 3, Backoff: time.Millisecond}
	if err := r.Publish(context.Background(), downNote()); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if f.calls != 3 || len(f.got) != 1 {
		t.Fatalf("calls=%d delivered=%d", f.calls, len(f.got))
	}
}

func TestRetry_AllFail(t *testing.T) {
	f := &flakyPublisher{fails: 10}
	r := &Retry{Inner: f, Attempts: 2}
	if err := r.Publish(context.Background(), downNote()); err == nil {
		t.Fatalf("expected failure")
	}
	if f.calls != 2 {
		t.Fatalf("want 2 attempts, got %d", f.calls)
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	f := &flakyPublisher{fails: 10}
	r := &Retry{Inner: f, Attempts: 5, Backoff: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := r.Publish(ctx, downNote()); err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("retry ignored context cancellation")
	}
	if f.calls != 1 {
		t.Fatalf("want 1 attempt before cancel, got %d", f.calls)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), downNote()); err != nil {
		t.Fatal(err)
	}
}

type brokenPublisher struct{ calls int }

func (b *brokenPublisher) Publish(context.Context, domain.DowntimeNotification) error {
	b.calls++
	return errors.New("webhook 500")
}

func TestRetryEach_FailingChannelDoesNotDuplicateOthers(t *testing.T) {
	stream := &flakyPublisher{}
	slack := &brokenPublisher{}
	p := RetryEach(3, time.Millisecond, stream, nil, slack)
	if len(p) != 2 {
		t.Fatalf("want 2 wrapped channels, got %d", len(p))
	}

	if err := p.Publish(context.Background(), downNote()); err == nil {
		t.Fatalf("expected the broken channel's error")
	}
	if stream.calls != 1 || len(stream.got) != 1 {
		t.Fatalf("stream delivered %d time(s) in %d call(s), want exactly once", len(stream.got), stream.calls)
	}
	if slack.calls != 3 {
		t.Fatalf("broken channel should be retried 3 times, got %d", slack.calls)
	}
}

func TestRetryEach_RetriesOnlyTheFlakyChannel(t *testing.T) {
	steady := &flakyPublisher{}
	flaky := &flakyPublisher{fails: 1}
	if err := RetryEach(3, time.Millisecond, steady, flaky).Publish(context.Background(), downNote()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steady.calls != 1 || flaky.calls != 2 {
		t.Fatalf("steady=%d flaky=%d calls", steady.calls, flaky.calls)
	}
}
