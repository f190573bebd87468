package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/spec-kit/appointment-service/internal/config"
)

const tracerName = "github.com/spec-kit/appointment-service"

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// SetupTracing installs propagators and, when enabled, an OTLP gRPC tracer provider.
// The returned function flushes spans on shutdown.
func SetupTracing(ctx context.Context, serviceName string, cfg config.TracingConfig) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// TracingMiddleware extracts inbound W3C trace context and wraps the request in a server span.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), requestHeaderCarrier{c: c})

		ctx, span := Tracer().Start(ctx, c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.target", c.OriginalURL()),
			attribute.Int("http.status_code", status),
		)
		if err != nil || status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, "request failed")
		}
		return err
	}
}

// requestHeaderCarrier reads propagation headers straight from the fasthttp request. Lookups go
// through c.Get, which matches names case-insensitively; fasthttp stores them canonicalised
// (Traceparent) while the W3C propagator asks for lower case.
type requestHeaderCarrier struct {
	c *fiber.Ctx
}

func (r requestHeaderCarrier) Get(key string) string {
	return r.c.Get(key)
}

func (r requestHeaderCarrier) Set(key, value string) {
	r.c.Request().Header.Set(key, value)
}

func (r requestHeaderCarrier) Keys() []string {
	keys := make([]string, 0, r.c.Request().Header.Len())
	r.c.Request().Header.VisitAll(func(key, _ []byte) {
		keys = append(keys, strings.ToLower(string(key)))
	})
	return keys
}

var _ propagation.TextMapCarrier = requestHeaderCarrier{}
