package util

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultServiceName = "academix-api"

var (
	tracerMu sync.RWMutex
	tracer   trace.Tracer
)

// TracerOptions configures InitTracer
type TracerOptions struct {
	ServiceName    string
	Environment    string
	JaegerEndpoint string
	// SampleRatio <= 0 samples everything outside production and 10% in it
	SampleRatio float64
}

// InitTracer installs the global tracer provider. With no Jaeger endpoint
// spans are created but never exported.
func InitTracer(opts TracerOptions) (*sdktrace.TracerProvider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaultServiceName
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.DeploymentEnvironment(opts.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts)),
	}
	if opts.JaegerEndpoint != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	tracerMu.Lock()
	tracer = tp.Tracer(opts.ServiceName)
	tracerMu.Unlock()

	GetLogger().Info("Tracer initialized",
		zap.String("service", opts.ServiceName),
		zap.String("endpoint", opts.JaegerEndpoint),
		zap.Bool("exporting", opts.JaegerEndpoint != ""))
	return tp, nil
}

func sampler(opts TracerOptions) sdktrace.Sampler {
	ratio := opts.SampleRatio
	if ratio <= 0 {
		ratio = 1
		if opts.Environment == "production" {
			ratio = 0.1
		}
	}
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	tracerMu.RLock()
	t := tracer
	tracerMu.RUnlock()
	if t != nil {
		return t
	}
	// the global delegates to whichever provider InitTracer installs later
	return otel.Tracer(defaultServiceName)
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName)
}
