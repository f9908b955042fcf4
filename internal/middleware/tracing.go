package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware starts a server span per request, continuing any W3C
// trace context the caller sent. Submit handlers persist this context on the
// task record so worker spans join the same trace.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "diagramq"
	}
	tracer := otel.Tracer(serviceName + "/http")

	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.Request.URL.Path),
			attribute.String("http.host", c.Request.Host),
		}
		if reqID := c.GetString("request_id"); reqID != "" {
			attrs = append(attrs, attribute.String("request.id", reqID))
		}
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method+" "+c.Request.URL.Path,
			trace.WithAttributes(attrs...))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		// Rename to the route pattern once gin has resolved it, keeping
		// cardinality bounded for parameterized paths.
		if route := c.FullPath(); route != "" {
			span.SetName("HTTP " + c.Request.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
