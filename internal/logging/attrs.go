package logging

import (
	"context"
	"log/slog"
	"time"

	"earthgazer/internal/services"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// ErrorKind records the persisted classification of err (transfer, raster, ...).
func ErrorKind(err error) Attr {
	return slog.String(FieldErrorKind, services.Kind(err))
}

func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with a component; nil falls back to a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

func findAttr(attrs []Attr, key string) (Attr, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a, true
		}
	}
	return Attr{}, false
}

// withDefaults fills event_type, error_hint and, when an error attribute is
// present, error_kind.
func withDefaults(attrs []Attr, eventType string) []Attr {
	if _, ok := findAttr(attrs, FieldEventType); !ok {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	if _, ok := findAttr(attrs, FieldErrorHint); !ok {
		attrs = append(attrs, String(FieldErrorHint, "check logs for details"))
	}
	if _, ok := findAttr(attrs, FieldErrorKind); !ok {
		if a, found := findAttr(attrs, "error"); found {
			if err, isErr := a.Value.Any().(error); isErr {
				attrs = append(attrs, ErrorKind(err))
			}
		}
	}
	return attrs
}

// WarnWithContext logs a warning carrying event_type, error_hint and impact.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs, eventType)
	if _, ok := findAttr(attrs, FieldImpact); !ok {
		attrs = append(attrs, String(FieldImpact, "capture left for the next run"))
	}
	logger.Warn(msg, Args(attrs...)...)
}

func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, Args(withDefaults(attrs, eventType)...)...)
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
