// Package reporting forwards backend errors to Sentry when a DSN is
// configured. Every function is a no-op until Start succeeds.
package reporting

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

// Start initializes the Sentry client. An empty dsn leaves reporting off.
func Start(release, dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return start(sentry.ClientOptions{
		Dsn:         dsn,
		Release:     "chumweb@" + release,
		Environment: environment,
	})
}

func start(opts sentry.ClientOptions) error {
	if err := sentry.Init(opts); err != nil {
		return fmt.Errorf("initializing sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

// Enabled reports whether Start configured a client.
func Enabled() bool {
	return enabled.Load()
}

// Flush waits for buffered events to be sent.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}

// NewContext returns parent carrying a hub scoped to one task, tagged
// with tags and the host platform.
func NewContext(parent context.Context, task string, tags map[string]string) context.Context {
	if !enabled.Load() {
		return parent
	}
	host, _ := os.Hostname()
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("task", task)
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("host", host)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetLevel(sentry.LevelInfo)
	})
	return sentry.SetHubOnContext(parent, hub)
}

// Breadcrumb records msg on the hub in ctx.
func Breadcrumb(ctx context.Context, category, msg string) {
	if !enabled.Load() {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(&sentry.Breadcrumb{
			Category: category,
			Message:  msg,
			Level:    sentry.LevelInfo,
		}, nil)
	}
}

// CaptureErr reports err using the hub in ctx, falling back to the
// global hub.
func CaptureErr(ctx context.Context, err error) *sentry.EventID {
	if err == nil || !enabled.Load() {
		return nil
	}
	return hubFrom(ctx).CaptureException(err)
}

// Recover reports a recovered panic value.
func Recover(ctx context.Context, v interface{}) *sentry.EventID {
	if v == nil || !enabled.Load() {
		return nil
	}
	return hubFrom(ctx).RecoverWithContext(ctx, v)
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}
