package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitErrorReporting configures Sentry. An empty DSN leaves the client disabled.
func InitErrorReporting(dsn, environment, release string) (func(), error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); err != nil {
		return func() {}, fmt.Errorf("failed to init sentry: %w", err)
	}
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// ReportError sends err to Sentry tagged with the operation and correlation ID.
func ReportError(ctx context.Context, operation string, err error) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		if id := ExtractCorrelationID(ctx); id != "" {
			scope.SetTag("correlation_id", id)
		}
		hub.CaptureException(err)
	})
}

// RecoverAndReport recovers a panic in a background goroutine, logs it and reports it.
// Use as: defer observability.RecoverAndReport(ctx, "listener")
func RecoverAndReport(ctx context.Context, operation string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("panic in %s: %v", operation, r)
		GlobalLogger.ErrorContext(ctx, "recovered panic", "operation", operation, "panic", r)
		ReportError(ctx, operation, err)
	}
}
