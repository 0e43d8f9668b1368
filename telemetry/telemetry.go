// Package telemetry provides OpenTelemetry initialization for applications
// embedding the library. Once initialized, the counters registered by the
// feeders, drains and writers are exported to the configured collector.
// The connectors register no counters and the library starts no trace spans.
package telemetry

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/FerroO2000/buritto/internal/telemetry"
)

const defaultCollectorEndpoint = "localhost:4317"

var (
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	traceRatio = 0.05
)

// isCollectorReachable checks if the OTLP collector port is reachable
func isCollectorReachable(endpoint string) bool {
	conn, err := net.DialTimeout("tcp", endpoint, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Init initializes OpenTelemetry against the collector at the given
// endpoint (the default "localhost:4317" is used when empty).
// It logs a warning and leaves the no-op providers in place when the
// collector is not reachable.
func Init(ctx context.Context, serviceName, endpoint string) error {
	if endpoint == "" {
		endpoint = defaultCollectorEndpoint
	}

	tel := telemetry.NewTelemetry("telemetry")

	if !isCollectorReachable(endpoint) {
		tel.LogWarn("OpenTelemetry collector is not reachable", "endpoint", endpoint)
		return nil
	}

	// Create gRPC connection
	grpcTransport := grpc.WithTransportCredentials(insecure.NewCredentials())
	grpcConn, err := grpc.NewClient(endpoint, grpcTransport)
	if err != nil {
		return err
	}

	// Resource
	res, err := newResource(serviceName)
	if err != nil {
		return err
	}

	// Trace
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(grpcConn))
	if err != nil {
		return err
	}
	tracerProvider = newTracerProvider(res, traceExporter)
	otel.SetTracerProvider(tracerProvider)

	// Trace Propagator
	otel.SetTextMapPropagator(propagation.TraceContext{})

	// Meter
	meterExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(grpcConn))
	if err != nil {
		return err
	}
	meterProvider = newMeterProvider(res, meterExporter)
	otel.SetMeterProvider(meterProvider)

	// Runtime
	return runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second))
}

// Close shuts down the OpenTelemetry providers.
func Close(ctx context.Context) error {
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}

	if meterProvider != nil {
		if err := meterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}

	return nil
}

// SetTraceRatio sets the sampling ratio for traces.
// It must be called before Init.
func SetTraceRatio(ratio float64) {
	traceRatio = ratio
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func newTracerProvider(res *resource.Resource, exporter *otlptrace.Exporter) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(traceRatio))),
	)
}

func newMeterProvider(res *resource.Resource, exporter *otlpmetricgrpc.Exporter) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
}
