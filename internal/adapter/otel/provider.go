package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporters selectable with OTEL_EXPORTER.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds OpenTelemetry provider configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string // "development" or "production"
	Exporter       string // ExporterNone, ExporterStdout or ExporterOTLP
	Insecure       bool   // plain HTTP for OTLP

	// Writer receives stdout-exporter output. Defaults to os.Stderr so
	// telemetry never mixes with command results.
	Writer io.Writer
}

// ConfigFromEnv builds Config from OTEL_* variables. Telemetry is off
// unless OTEL_EXPORTER selects an exporter.
func ConfigFromEnv() Config {
	env := envOrDefault("OTEL_ENVIRONMENT", "development")
	return Config{
		ServiceName:    envOrDefault("OTEL_SERVICE_NAME", "ctinamer"),
		ServiceVersion: envOrDefault("OTEL_SERVICE_VERSION", "0.1.0"),
		Environment:    env,
		Exporter:       envOrDefault("OTEL_EXPORTER", ExporterNone),
		Insecure:       env == "development",
	}
}

// Providers holds initialized OTel providers and their shutdown function.
type Providers struct {
	Shutdown func(ctx context.Context) error
}

// Setup installs global tracer and meter providers for cfg. Shutdown must
// be called on exit to flush pending telemetry.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	spans, err := spanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}
	metrics, err := metricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	tpOpts := []trace.TracerProviderOption{trace.WithResource(res)}
	if spans != nil {
		tpOpts = append(tpOpts, trace.WithBatcher(spans))
	}
	mpOpts := []metric.Option{metric.WithResource(res)}
	if metrics != nil {
		mpOpts = append(mpOpts, metric.WithReader(metric.NewPeriodicReader(metrics)))
	}
	tp := trace.NewTracerProvider(tpOpts...)
	mp := metric.NewMeterProvider(mpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		var errs error
		if err := tp.Shutdown(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("meter shutdown: %w", err))
		}
		return errs
	}

	return &Providers{Shutdown: shutdown}, nil
}

// spanExporter returns nil for ExporterNone.
func spanExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLP:
		var opts []otlptracehttp.Option
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(cfg.Writer))
	case ExporterNone:
		return nil, nil
	}
	return nil, unsupportedExporter(cfg.Exporter)
}

// metricExporter returns nil for ExporterNone.
func metricExporter(ctx context.Context, cfg Config) (metric.Exporter, error) {
	switch cfg.Exporter {
	case ExporterOTLP:
		var opts []otlpmetrichttp.Option
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	case ExporterStdout:
		return stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
	case ExporterNone:
		return nil, nil
	}
	return nil, unsupportedExporter(cfg.Exporter)
}

func unsupportedExporter(name string) error {
	return fmt.Errorf("unsupported exporter %q (use %q, %q or %q)", name, ExporterNone, ExporterStdout, ExporterOTLP)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
