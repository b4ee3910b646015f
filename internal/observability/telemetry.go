package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// shutdownTimeout is the maximum time to wait for provider shutdown.
const shutdownTimeout = 5 * time.Second

// shutdowner matches SDK providers and readers that need flushing on exit.
type shutdowner interface {
	Shutdown(context.Context) error
}

// Telemetry owns the OTel providers for the process. The zero value
// (all providers nil) is a valid disabled instance.
type Telemetry struct {
	config         *Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metrics        *Metrics
	meterReader    any
	closeOnce      sync.Once
}

// Init sets up OpenTelemetry according to cfg and registers the global
// providers. The returned cleanup function flushes and shuts everything
// down and is safe to call more than once.
func Init(ctx context.Context, cfg *Config) (*Telemetry, func(), error) {
	tel := &Telemetry{config: cfg}
	if !cfg.ShouldEnable() {
		return tel, func() {}, nil
	}

	if cfg.TracesEnabled {
		tp, err := initTracerProvider(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		tel.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, reader, err := initMeterProvider(ctx, cfg)
		if err != nil {
			tel.teardown(ctx)
			return nil, nil, err
		}
		tel.meterProvider = mp
		tel.meterReader = reader
		otel.SetMeterProvider(mp)

		instruments, err := InitMetrics(mp)
		if err != nil {
			tel.teardown(ctx)
			return nil, nil, err
		}
		tel.metrics = instruments
	}

	return tel, tel.Cleanup, nil
}

// teardown shuts down whatever providers were created so far. Used both
// for error unwinding during Init and for the final Shutdown.
func (t *Telemetry) teardown(ctx context.Context) error {
	var errs []error
	if sd, ok := t.tracerProvider.(shutdowner); ok {
		if err := sd.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	// Flush pending metrics before the provider goes away. Only the
	// PeriodicReader supports this.
	if fl, ok := t.meterReader.(interface{ ForceFlush(context.Context) error }); ok {
		if err := fl.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if sd, ok := t.meterProvider.(shutdowner); ok {
		if err := sd.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// TracerProvider returns the tracer provider (or a noop if disabled).
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.tracerProvider != nil {
		return t.tracerProvider
	}
	return trace.NewNoopTracerProvider()
}

// MeterProvider returns the meter provider (or the global if disabled).
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t.meterProvider != nil {
		return t.meterProvider
	}
	return otel.GetMeterProvider()
}

// Metrics returns the metric instruments, or nil if metrics are disabled.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Shutdown flushes and closes all providers. Subsequent calls are no-ops.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		err = t.teardown(ctx)
	})
	return err
}

// Cleanup is a convenience wrapper around Shutdown for defer.
func (t *Telemetry) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = t.Shutdown(ctx)
}
