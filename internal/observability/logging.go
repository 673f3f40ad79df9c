// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger so helpers can hang domain methods off it.
type Logger struct {
	*slog.Logger
}

// GlobalLogger backs every helper in this package.
var GlobalLogger = &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))}

// SetGlobalLogger replaces the logger used by the helpers in this package.
func SetGlobalLogger(l *slog.Logger) {
	GlobalLogger = &Logger{Logger: l}
}

type correlationKey struct{}

// LoggingConfig toggles the noisier automatic log sources.
type LoggingConfig struct {
	EnableRepoLogging  bool
	EnableWSLogging    bool
	EnableStoreLogging bool
}

// Config is read on every log call; tests flip it freely.
var Config = LoggingConfig{
	EnableRepoLogging: true,
	EnableWSLogging:   true,
}

// GenerateCorrelationID returns a fresh random ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID tags ctx so repository, store and fetch logs can be joined
// back to the request that caused them.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// ExtractCorrelationID returns the ID set by WithCorrelationID or "".
func ExtractCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func entry(ctx context.Context, base []any, fields map[string]interface{}) []any {
	if id := ExtractCorrelationID(ctx); id != "" {
		base = append(base, slog.String("correlation_id", id))
	}
	for k, v := range fields {
		base = append(base, slog.Any(k, v))
	}
	return base
}

// RepoLogger logs row-level repository activity for one table at debug level.
type RepoLogger struct {
	table string
}

// NewRepoLogger scopes a RepoLogger to table.
func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table}
}

func (l *RepoLogger) write(ctx context.Context, op string, fields map[string]interface{}) {
	if !Config.EnableRepoLogging {
		return
	}
	base := []any{slog.String("table", l.table), slog.String("operation", op)}
	GlobalLogger.DebugContext(ctx, "repository "+op, entry(ctx, base, fields)...)
}

func (l *RepoLogger) LogCreate(ctx context.Context, fields map[string]interface{}) {
	l.write(ctx, "create", fields)
}

func (l *RepoLogger) LogRead(ctx context.Context, fields map[string]interface{}) {
	l.write(ctx, "read", fields)
}

func (l *RepoLogger) LogUpdate(ctx context.Context, fields map[string]interface{}) {
	l.write(ctx, "update", fields)
}

func (l *RepoLogger) LogDelete(ctx context.Context, fields map[string]interface{}) {
	l.write(ctx, "delete", fields)
}

// LogError is emitted at error level regardless of the debug threshold.
func (l *RepoLogger) LogError(ctx context.Context, err error, op string) {
	if !Config.EnableRepoLogging {
		return
	}
	base := []any{slog.String("table", l.table), slog.String("operation", op), slog.String("error", err.Error())}
	GlobalLogger.ErrorContext(ctx, "repository error", entry(ctx, base, nil)...)
}

// WSLogger logs connection lifecycle for one notification hub.
type WSLogger struct {
	hub string
}

// NewWSLogger scopes a WSLogger to hub.
func NewWSLogger(hub string) *WSLogger {
	return &WSLogger{hub: hub}
}

func (l *WSLogger) info(ctx context.Context, msg string, attrs ...any) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, msg, append([]any{slog.String("hub", l.hub)}, attrs...)...)
}

func (l *WSLogger) LogConnect(ctx context.Context, userID string) {
	l.info(ctx, "websocket connected", slog.String("user_id", userID))
}

func (l *WSLogger) LogDisconnect(ctx context.Context, userID, reason string) {
	l.info(ctx, "websocket disconnected", slog.String("user_id", userID), slog.String("reason", reason))
}

func (l *WSLogger) LogError(ctx context.Context, userID string, err error, eventType string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hub),
		slog.String("user_id", userID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogLifecycle records hub-wide events such as shutdown or dropped frames.
func (l *WSLogger) LogLifecycle(ctx context.Context, event string, fields map[string]interface{}) {
	l.info(ctx, "websocket lifecycle", entry(ctx, []any{slog.String("event", event)}, fields)...)
}

// LogTransition records a state transition applied to a viewer store.
func LogTransition(ctx context.Context, viewerID, slice, op string) {
	if !Config.EnableStoreLogging {
		return
	}
	base := []any{slog.String("viewer_id", viewerID), slog.String("slice", slice), slog.String("op", op)}
	GlobalLogger.DebugContext(ctx, "store transition", entry(ctx, base, nil)...)
}

func logAsync(ctx context.Context, level slog.Level, msg, operation, phase string, fields map[string]interface{}, extra ...any) {
	base := append([]any{slog.String("operation", operation), slog.String("type", phase)}, extra...)
	GlobalLogger.Log(ctx, level, msg, entry(ctx, base, fields)...)
}

// LogAsyncOperationStart marks the beginning of a background fetch.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]interface{}) {
	logAsync(ctx, slog.LevelInfo, "async operation started", operation, "async_start", fields)
}

// LogAsyncOperationEnd marks a fetch that finished, including superseded ones.
func LogAsyncOperationEnd(ctx context.Context, operation string, fields map[string]interface{}) {
	logAsync(ctx, slog.LevelInfo, "async operation completed", operation, "async_end", fields)
}

// LogAsyncOperationError marks a fetch that failed.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	logAsync(ctx, slog.LevelError, "async operation failed", operation, "async_error", fields, slog.String("error", err.Error()))
}
