package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundvault/backend/internal/util"
)

// TracingMiddleware traces HTTP requests with OpenTelemetry. Wraps the
// official otelgin middleware and attaches caller identity to the span.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	base := otelgin.Middleware(serviceName)

	return func(c *gin.Context) {
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		if identity, exists := c.Get(util.ContextIdentityKey); exists {
			if s, ok := identity.(string); ok {
				span.SetAttributes(attribute.String("api_key.id", s))
			}
		}
		if trackID := c.Param("track_id"); trackID != "" {
			span.SetAttributes(attribute.String("track.id", trackID))
		}

		for _, ginErr := range c.Errors {
			if ginErr.Err != nil {
				span.RecordError(ginErr.Err)
				span.SetStatus(codes.Error, ginErr.Error())
			}
		}
	}
}
