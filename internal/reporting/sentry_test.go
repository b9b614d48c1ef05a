package reporting

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestDisabledIsNoop(t *testing.T) {
	if err := Start("test", "", ""); err != nil {
		t.Fatalf("Start() with empty DSN failed: %v", err)
	}
	if Enabled() {
		t.Fatal("reporting enabled without a DSN")
	}
	ctx := context.Background()
	if got := NewContext(ctx, "task", nil); got != ctx {
		t.Error("NewContext should return the parent when disabled")
	}
	if id := CaptureErr(ctx, errors.New("boom")); id != nil {
		t.Errorf("CaptureErr() = %v, want nil", id)
	}
}

func TestCaptureErrUsesScopedHub(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	err := start(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			// Drop the event; nothing leaves the process.
			return nil
		},
	})
	if err != nil {
		t.Fatalf("start() failed: %v", err)
	}
	t.Cleanup(func() { enabled.Store(false) })

	ctx := NewContext(context.Background(), "lookup", map[string]string{"repo": "4.1.0.24_armv7hl"})
	Breadcrumb(ctx, "lookup", "fetching repomd")
	CaptureErr(ctx, errors.New("checksum missing"))

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Tags["task"] != "lookup" || ev.Tags["repo"] != "4.1.0.24_armv7hl" {
		t.Errorf("tags = %v", ev.Tags)
	}
	if len(ev.Breadcrumbs) != 1 || ev.Breadcrumbs[0].Message != "fetching repomd" {
		t.Errorf("breadcrumbs = %+v", ev.Breadcrumbs)
	}
	if len(ev.Exception) == 0 || ev.Exception[0].Value != "checksum missing" {
		t.Errorf("exception = %+v", ev.Exception)
	}
}
