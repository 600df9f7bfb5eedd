package log

import (
	"context"
	"log/slog"
)

// ErrFmtHandler is a slog handler that adds the cockroachdb/errors
// stacktrace of the ErrAttrKey attribute to each record.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler so that records carrying an error
// under ErrAttrKey also carry a StacktraceAttrKey attribute.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{
		handler: handler,
	}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var stacktrace string
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == ErrAttrKey {
			if err, ok := attr.Value.Any().(error); ok {
				stacktrace = extractStacktrace(err)
			}
			return false
		}
		return true
	})
	if stacktrace != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stacktrace))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// slogLogger adapts a *slog.Logger to Logger. A leading error field is
// moved under ErrAttrKey so ErrFmtHandler can find it.
type slogLogger struct {
	sl *slog.Logger
}

// NewSlogLogger adapts sl to Logger.
func NewSlogLogger(sl *slog.Logger) Logger {
	return &slogLogger{sl: sl}
}

func (l *slogLogger) Debug(msg string, fields ...any) { l.log(slog.LevelDebug, msg, fields) }
func (l *slogLogger) Info(msg string, fields ...any)  { l.log(slog.LevelInfo, msg, fields) }
func (l *slogLogger) Warn(msg string, fields ...any)  { l.log(slog.LevelWarn, msg, fields) }
func (l *slogLogger) Error(msg string, fields ...any) { l.log(slog.LevelError, msg, fields) }

func (l *slogLogger) With(fields ...any) Logger {
	return &slogLogger{sl: l.sl.With(fields...)}
}

func (l *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return l.sl.Enabled(ctx, slog.Level(level))
}

func (l *slogLogger) log(level slog.Level, msg string, fields []any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttr(err)}, fields[1:]...)
		}
	}
	l.sl.Log(context.Background(), level, msg, fields...)
}
