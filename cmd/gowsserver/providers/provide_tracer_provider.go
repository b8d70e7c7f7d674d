package providers

import (
	"context"

	"github.com/gbdevw/gowsserver/cmd/gowsserver/configuration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

func ProvideTracerProvider(lc fx.Lifecycle, config configuration.Configuration) (trace.TracerProvider, error) {
	if !config.TracingEnabled {
		// Global tracer provider will return a NopTracerProvider
		return otel.GetTracerProvider(), nil
	}
	exp, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(config.TracingEndpoint),
		otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("gowsserver"),
		)),
	)
	otel.SetTracerProvider(tp)
	// Flush pending spans on shutdown
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
