// Package tracing wires OTLP trace export and carries trace context across
// the submit-request/worker boundary and into analyzer calls.
package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

type Config struct {
	Enabled     bool
	ServiceName string

	OTLPEndpoint string
	OTLPInsecure bool

	SampleRatio float64
}

const (
	traceParentHeader = "traceparent"
	traceStateHeader  = "tracestate"
)

// Setup installs a global tracer provider and returns its shutdown func.
// Exporter failures disable tracing instead of failing startup; the
// propagator is installed either way so header handling stays uniform.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	exp, err := otlptracegrpc.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		logger.Warn("otel exporter init failed; tracing disabled", "err", err)
		return noop, nil
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(resolveServiceName(cfg.ServiceName)),
	))
	if err != nil {
		logger.Warn("otel resource init failed; using default", "err", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func exporterOptions(cfg Config) []otlptracegrpc.Option {
	insecure := cfg.OTLPInsecure
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "y", "on":
			insecure = true
		default:
			insecure = false
		}
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(resolveEndpoint(cfg.OTLPEndpoint)),
	}
	if insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

func resolveServiceName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	}
	if name == "" {
		name = "diagramq"
	}
	return name
}

// resolveEndpoint accepts host:port or a URL; the gRPC exporter wants host:port.
func resolveEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	if endpoint == "" {
		return "localhost:4317"
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimSuffix(endpoint, "/")
}

// TraceContextStrings extracts the W3C trace context of the current span so
// it can be persisted on a task record.
func TraceContextStrings(ctx context.Context) (traceParent, traceState string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get(traceParentHeader), carrier.Get(traceStateHeader)
}

// ContextWithRemoteParent rebuilds a context whose parent span is the one the
// strings were captured from, typically in a worker picking up a stored task.
func ContextWithRemoteParent(ctx context.Context, traceParent, traceState string) context.Context {
	traceParent = strings.TrimSpace(traceParent)
	traceState = strings.TrimSpace(traceState)
	if traceParent == "" && traceState == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	if traceParent != "" {
		carrier.Set(traceParentHeader, traceParent)
	}
	if traceState != "" {
		carrier.Set(traceStateHeader, traceState)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectHeaders adds traceparent/tracestate to an outbound request. Only
// TraceContext is propagated; baggage never leaves the service, so nothing
// request-scoped leaks to the analyzer endpoint.
func InjectHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(h))
}
