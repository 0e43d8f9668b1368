// Package telemetry bundles the logging, metrics and tracing helpers
// shared by the library components.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopePrefix = "github.com/FerroO2000/buritto/"

// Telemetry carries the logger, meter and tracer of a library component.
type Telemetry struct {
	scope string

	console *slog.Logger

	// bridge forwards log records to the OpenTelemetry logger provider.
	// It is a no-op until a provider is registered globally.
	bridge *slog.Logger

	meter  metric.Meter
	tracer trace.Tracer
}

// NewTelemetry returns the telemetry for the component with the given scope.
func NewTelemetry(scope string) *Telemetry {
	out := colorable.NewColorable(os.Stderr)

	noColor := !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())

	handler := tint.NewHandler(out, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})

	return &Telemetry{
		scope: scope,

		console: slog.New(handler).With("scope", scope),
		bridge:  otelslog.NewLogger(scopePrefix + scope),

		meter:  otel.Meter(scopePrefix + scope),
		tracer: otel.Tracer(scopePrefix + scope),
	}
}

// LogInfo logs an info message.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.console.Info(msg, args...)
	t.bridge.Info(msg, args...)
}

// LogWarn logs a warning message.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.console.Warn(msg, args...)
	t.bridge.Warn(msg, args...)
}

// LogError logs an error message.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	args = append(args, tint.Err(err))

	t.console.Error(msg, args...)
	t.bridge.Error(msg, args...)
}

// NewCounter registers an observable counter backed by the given callback.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableCounter(t.scope+"_"+name,
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(callback())
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to register counter", err, "name", name)
	}
}

// NewTrace starts a new trace span.
func (t *Telemetry) NewTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}
