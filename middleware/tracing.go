package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/tracing"
	"github.com/fuchsia74/grok-api/model"
)

// TracingMiddleware opens a trace row per request and stamps the first byte
// written to the client, which is the latency stream consumers feel.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tracing.RecordTraceStart(c)

		c.Writer = &firstByteWriter{ResponseWriter: c.Writer, context: c}

		c.Next()

		tracing.RecordTraceEnd(c)
	}
}

// firstByteWriter stamps the first-client-response milestone exactly once,
// whichever write path gin takes.
type firstByteWriter struct {
	gin.ResponseWriter
	context *gin.Context
	stamped bool
}

func (w *firstByteWriter) stamp() {
	if !w.stamped {
		w.stamped = true
		tracing.RecordTraceTimestamp(w.context, model.TimestampFirstClientResponse)
	}
}

func (w *firstByteWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *firstByteWriter) WriteHeader(statusCode int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *firstByteWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}
