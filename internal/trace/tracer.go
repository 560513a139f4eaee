package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/livefir/pageserver/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the OpenTelemetry tracer name spans are started under
const InstrumentationName = "github.com/livefir/pageserver"

// Span names for component loading
const (
	SpanLoadComponents             = "LoadComponents.loadComponents"
	SpanLoadDefaultErrorComponents = "LoadComponents.loadDefaultErrorComponents"
)

// Tracer records named spans around wrapped operations
type Tracer struct {
	logger    zerolog.Logger
	collector *metrics.Collector
	provider  oteltrace.TracerProvider
	now       func() time.Time
}

// Option configures a Tracer
type Option func(*Tracer)

// WithLogger sets the logger span ends are written to
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracer) {
		t.logger = logger
	}
}

// WithCollector sets the collector span metrics are recorded into
func WithCollector(c *metrics.Collector) Option {
	return func(t *Tracer) {
		t.collector = c
	}
}

// WithTracerProvider sets the OpenTelemetry provider spans are started from.
// Without it the global provider is used.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(t *Tracer) {
		t.provider = tp
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		t.now = now
	}
}

// New creates a tracer; without options it records into a fresh collector and logs nothing
func New(opts ...Option) *Tracer {
	t := &Tracer{
		logger:    zerolog.Nop(),
		collector: metrics.NewCollector(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.provider == nil {
		t.provider = otel.GetTracerProvider()
	}
	return t
}

// Collector returns the collector spans are recorded into
func (t *Tracer) Collector() *metrics.Collector {
	return t.collector
}

// Wrap returns fn instrumented under span. The wrapped function passes its
// input through and returns fn's result and error unchanged. A panic in fn is
// recorded as a failed span and then re-raised.
func Wrap[I, O any](t *Tracer, span string, fn func(context.Context, I) (O, error)) func(context.Context, I) (O, error) {
	if t == nil {
		return fn
	}
	tracer := t.provider.Tracer(InstrumentationName)

	return func(ctx context.Context, in I) (out O, err error) {
		ctx, s := tracer.Start(ctx, span)
		start := t.now()
		t.collector.SpanStarted(span)

		defer func() {
			r := recover()
			if r != nil {
				err = fmt.Errorf("panic: %v", r)
			}

			elapsed := t.now().Sub(start)
			t.collector.SpanFinished(span, elapsed, err)

			var ev *zerolog.Event
			if err != nil {
				s.RecordError(err)
				s.SetStatus(codes.Error, err.Error())
				ev = t.logger.Warn().Err(err)
			} else {
				s.SetStatus(codes.Ok, "")
				ev = t.logger.Debug()
			}
			s.End()
			ev.Str("span", span).Dur("duration", elapsed).Msg("span finished")

			if r != nil {
				panic(r)
			}
		}()

		return fn(ctx, in)
	}
}
