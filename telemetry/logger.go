package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	// Skip if no context
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a JSON logger on stdout with OTEL hooks
func NewLogger(service string) *Logger {
	return NewLoggerTo(os.Stdout, service)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// NewConsoleLogger creates a human-readable logger for terminals
func NewConsoleLogger(w io.Writer, service string) *Logger {
	return NewLoggerTo(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}, service)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogSpanStart logs the start of a span with attributes
func (l *Logger) LogSpanStart(ctx context.Context, spanName string, attrs ...attribute.KeyValue) {
	logger := l.WithContext(ctx)

	event := logger.Debug().Str("span_name", spanName)
	for _, attr := range attrs {
		event = addAttributeToEvent(event, attr)
	}
	event.Msg("span started")
}

// LogSpanEnd logs the end of a span with results
func (l *Logger) LogSpanEnd(ctx context.Context, spanName string, err error) {
	logger := l.WithContext(ctx)

	if err != nil {
		logger.Error().
			Err(err).
			Str("span_name", spanName).
			Msg("span failed")
	} else {
		logger.Debug().
			Str("span_name", spanName).
			Msg("span completed")
	}
}

// Helper to convert OTEL attributes to zerolog fields
func addAttributeToEvent(event *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)

	switch attr.Value.Type() {
	case attribute.STRING:
		return event.Str(key, attr.Value.AsString())
	case attribute.INT64:
		return event.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return event.Float64(key, attr.Value.AsFloat64())
	case attribute.BOOL:
		return event.Bool(key, attr.Value.AsBool())
	default:
		return event.Str(key, attr.Value.AsString())
	}
}

// Convenience methods for reconciliation

func (l *Logger) LogChange(ctx context.Context, kind, identity, entry string) {
	l.WithContext(ctx).Info().
		Str("kind", kind).
		Str("identity", identity).
		Msg(entry)
}

func (l *Logger) LogOperation(ctx context.Context, action, kind, target string, err error) {
	if err != nil {
		l.WithContext(ctx).Error().
			Err(err).
			Str("op", action).
			Str("kind", kind).
			Str("target", target).
			Msg("remote operation failed")
		return
	}
	l.WithContext(ctx).Debug().
		Str("op", action).
		Str("kind", kind).
		Str("target", target).
		Msg("remote operation applied")
}

func (l *Logger) LogEntityResult(ctx context.Context, kind, identity string, changed bool, duration time.Duration, err error) {
	if err != nil {
		l.WithContext(ctx).Error().
			Err(err).
			Str("kind", kind).
			Str("identity", identity).
			Dur("duration", duration).
			Msg("reconciliation failed")
		return
	}
	l.WithContext(ctx).Info().
		Str("kind", kind).
		Str("identity", identity).
		Bool("changed", changed).
		Dur("duration", duration).
		Msg("reconciliation completed")
}

func (l *Logger) LogStorageError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("storage operation failed")
}
