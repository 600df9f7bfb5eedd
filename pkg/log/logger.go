package log

import (
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// SetupLogger installs a JSON slog logger on stdout, wrapped by
// ErrFmtHandler, as the slog default.
func SetupLogger(loglevel string) {
	slog.SetDefault(newSlog(os.Stdout, ParseLevel(loglevel)))
}

// ToLogLevel converts a level name into a slog.Level.
func ToLogLevel(level string) slog.Level {
	return slog.Level(ParseLevel(level))
}

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

func newSlog(w io.Writer, level Level) *slog.Logger {
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     slog.Level(level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{Key: "severity", Value: attr.Value}
			case slog.MessageKey:
				attr = slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	}
	return slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops)))
}

// extractStacktrace returns the first safe detail recorded by
// cockroachdb/errors, which holds the stack captured by WithStack.
func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
