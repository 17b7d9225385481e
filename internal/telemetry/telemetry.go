// Package telemetry initializes the OpenTelemetry metrics exporter and
// bridges the in-process metric registry onto observable OTEL instruments.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/ashita-ai/kanshi/internal/metrics"
)

// Shutdown flushes and stops the exporter.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry meter provider with an OTLP/HTTP
// exporter. If endpoint is empty, OTEL is disabled and a no-op shutdown is
// returned. The returned shutdown must be called during graceful shutdown.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(15*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// BridgeRegistry registers an observable gauge that mirrors every registry
// series into the global meter on each collection cycle. Counter sums,
// gauge values, and histogram means are all exported as one float gauge
// keyed by metric name and tags; histogram count and p95 ride along as
// companion series.
func BridgeRegistry(reg *metrics.Registry) error {
	meter := Meter("kanshi/registry")

	_, err := meter.Float64ObservableGauge("kanshi.metric",
		metric.WithDescription("Mirrored value of every kanshi registry series"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			for _, s := range reg.Snapshot() {
				attrs := make([]attribute.KeyValue, 0, len(s.Tags)+2)
				attrs = append(attrs,
					attribute.String("metric", s.Name),
					attribute.String("kind", string(s.Stat.Kind)),
				)
				for k, v := range s.Tags {
					attrs = append(attrs, attribute.String("tag."+k, v))
				}
				o.Observe(s.Stat.Value, metric.WithAttributes(attrs...))
				if s.Stat.Kind == metrics.KindHistogram {
					o.Observe(float64(s.Stat.Count), metric.WithAttributes(append(attrs, attribute.String("stat", "count"))...))
					o.Observe(s.Stat.P95, metric.WithAttributes(append(attrs, attribute.String("stat", "p95"))...))
				}
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("telemetry: register registry bridge: %w", err)
	}
	return nil
}
