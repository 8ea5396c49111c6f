// Package observability provides logging, metrics, tracing, and error reporting.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the daemon.
var GlobalLogger *Logger

func init() {
	GlobalLogger = NewLogger(os.Stdout, slog.LevelInfo, os.Getenv("APP_ENV") == "production")
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
	SessionID     LogContextKey = "session_id"
	ViewerID      LogContextKey = "viewer_id"
)

// ctxHandler adds context values to every record.
type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(CorrelationID).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := ctx.Value(SessionID).(string); ok && id != "" {
		r.AddAttrs(slog.String("session_id", id))
	}
	if id, ok := ctx.Value(ViewerID).(string); ok && id != "" {
		r.AddAttrs(slog.String("viewer_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds a context-aware logger. JSON output in production, text otherwise.
func NewLogger(w io.Writer, level slog.Level, production bool) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(&ctxHandler{handler})}
}

// ConfigureLogging replaces the global logger.
func ConfigureLogging(level string, production bool) {
	GlobalLogger = NewLogger(os.Stdout, ParseLevel(level), production)
	slog.SetDefault(GlobalLogger.Logger)
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// EnsureCorrelationID attaches a fresh correlation ID unless ctx already has one.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if ExtractCorrelationID(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, GenerateCorrelationID())
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// WithSession tags ctx with the session and viewer for log records.
func WithSession(ctx context.Context, sessionID, viewerID string) context.Context {
	ctx = context.WithValue(ctx, SessionID, sessionID)
	return context.WithValue(ctx, ViewerID, viewerID)
}

// FeedLogger provides structured logging for feed synchronization.
type FeedLogger struct {
	logger *Logger
}

// NewFeedLogger creates a FeedLogger on the global logger.
func NewFeedLogger() *FeedLogger {
	return &FeedLogger{logger: GlobalLogger}
}

func (l *FeedLogger) log() *Logger {
	if l == nil || l.logger == nil {
		return GlobalLogger
	}
	return l.logger
}

// LogPageLoaded logs a page applied to the Feed Store.
func (l *FeedLogger) LogPageLoaded(ctx context.Context, kind string, pageIndex, count int, hasMore bool) {
	l.log().InfoContext(ctx, "feed page loaded",
		slog.String("kind", kind),
		slog.Int("page_index", pageIndex),
		slog.Int("count", count),
		slog.Bool("has_more", hasMore),
	)
}

// LogPageDiscarded logs a page result dropped because the feed moved on.
func (l *FeedLogger) LogPageDiscarded(ctx context.Context, kind string, pageIndex int) {
	l.log().DebugContext(ctx, "feed page discarded",
		slog.String("kind", kind),
		slog.Int("page_index", pageIndex),
	)
}

// LogFetchError logs a failed page fetch.
func (l *FeedLogger) LogFetchError(ctx context.Context, kind string, pageIndex int, err error) {
	l.log().ErrorContext(ctx, "feed page fetch failed",
		slog.String("kind", kind),
		slog.Int("page_index", pageIndex),
		slog.String("error", err.Error()),
	)
}

// LogMutation logs the outcome of an optimistic mutation.
func (l *FeedLogger) LogMutation(ctx context.Context, kind, postID, outcome string, err error) {
	attrs := []any{
		slog.String("kind", kind),
		slog.String("post_id", postID),
		slog.String("outcome", outcome),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.log().WarnContext(ctx, "optimistic mutation", attrs...)
		return
	}
	l.log().InfoContext(ctx, "optimistic mutation", attrs...)
}

// LogCacheError logs a persistence cache failure. Cache failures never fail the feed.
func (l *FeedLogger) LogCacheError(ctx context.Context, op string, err error) {
	l.log().WarnContext(ctx, "feed cache error",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// RealtimeLogger provides structured logging for the realtime subscription.
type RealtimeLogger struct {
	topic  string
	logger *Logger
}

// NewRealtimeLogger creates a RealtimeLogger for the given topic.
func NewRealtimeLogger(topic string) *RealtimeLogger {
	return &RealtimeLogger{topic: topic, logger: GlobalLogger}
}

// LogLifecycle logs a subscription lifecycle event.
func (l *RealtimeLogger) LogLifecycle(ctx context.Context, event string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("topic", l.topic),
		slog.String("event", event),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "realtime lifecycle", attrs...)
}

// LogError logs a subscription error.
func (l *RealtimeLogger) LogError(ctx context.Context, event string, err error) {
	l.logger.ErrorContext(ctx, "realtime error",
		slog.String("topic", l.topic),
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}

// LogAsyncOperationError logs an error in a fire-and-forget operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
