package tracing

import (
	"context"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/model"
)

// GetTraceID extracts the TraceID from gin context using gin-middlewares
func GetTraceID(c *gin.Context) string {
	traceID, err := gmw.TraceID(c)
	if err != nil {
		gmw.GetLogger(c).Warn("failed to get trace ID from gin-middlewares", zap.Error(err))
		// Fallback to empty string - this should not happen in normal operation
		return ""
	}
	return traceID.String()
}

// GetTraceIDFromContext extracts TraceID from standard context
// This is useful when we only have context.Context and not gin.Context
func GetTraceIDFromContext(ctx context.Context) string {
	if ginCtx, ok := gmw.GetGinCtxFromStdCtx(ctx); ok {
		return GetTraceID(ginCtx)
	}
	logger.Logger.Warn("failed to get gin context from standard context for trace ID extraction")
	return ""
}

// RecordTraceStart creates a new trace record when a request starts
func RecordTraceStart(c *gin.Context) {
	traceID := GetTraceID(c)
	lg := gmw.GetLogger(c).With(zap.String("trace_id", traceID))
	if traceID == "" {
		lg.Warn("empty trace ID, skipping trace record creation")
		return
	}

	url := c.Request.URL.String()
	method := c.Request.Method
	bodySize := max(c.Request.ContentLength, 0)

	ctx := gmw.Ctx(c)
	// propagate tagged logger downstream
	ctx = gmw.SetLogger(ctx, lg)
	_, err := model.CreateTrace(ctx, traceID, url, method, bodySize)
	if err != nil {
		lg.Error("failed to create trace record",
			zap.Error(err))
	}
}

// RecordTraceTimestamp updates a specific timestamp in the trace record
func RecordTraceTimestamp(c *gin.Context, timestampKey string) {
	traceID := GetTraceID(c)
	lg := gmw.GetLogger(c).With(
		zap.String("trace_id", traceID),
		zap.String("timestamp_key", timestampKey),
	)
	if traceID == "" {
		lg.Warn("empty trace ID, skipping timestamp update")
		return
	}

	err := model.UpdateTraceTimestamp(c, traceID, timestampKey)
	if err != nil {
		lg.Error("failed to update trace timestamp", zap.Error(err))
	}
}

// RecordTraceStatus updates the HTTP status code for a trace
func RecordTraceStatus(c *gin.Context, status int) {
	traceID := GetTraceID(c)
	lg := gmw.GetLogger(c).With(
		zap.String("trace_id", traceID),
		zap.Int("status", status),
	)
	if traceID == "" {
		lg.Warn("empty trace ID, skipping status update")
		return
	}

	ctx := gmw.Ctx(c)
	// propagate tagged logger downstream
	ctx = gmw.SetLogger(ctx, lg)
	err := model.UpdateTraceStatus(ctx, traceID, status)
	if err != nil {
		lg.Error("failed to update trace status", zap.Error(err))
	}
}

// RecordTraceRelayInfo attaches model, token, and attempt counters to the trace
// once the relay controller has resolved them.
func RecordTraceRelayInfo(c *gin.Context, modelName string, tokenId, attempts int) {
	traceID := GetTraceID(c)
	if traceID == "" {
		return
	}
	ctx := gmw.Ctx(c)
	if err := model.UpdateTraceRelayInfo(ctx, traceID, modelName, tokenId, attempts); err != nil {
		gmw.GetLogger(c).Warn("failed to update trace relay info",
			zap.String("trace_id", traceID), zap.Error(err))
	}
}

// RecordTraceEnd marks the completion of a request and records final timestamp
func RecordTraceEnd(c *gin.Context) {
	traceID := GetTraceID(c)
	lg := gmw.GetLogger(c).With(zap.String("trace_id", traceID))
	if traceID == "" {
		lg.Warn("empty trace ID, skipping trace end recording")
		return
	}

	// Record the final timestamp
	RecordTraceTimestamp(c, model.TimestampRequestCompleted)

	// Record the final status code
	status := c.Writer.Status()
	if status == 0 {
		status = 200 // Default to 200 if no status was set
	}
	RecordTraceStatus(c, status)
}

// WithTraceID adds trace ID to structured logging fields
func WithTraceID(c *gin.Context, fields ...zap.Field) []zap.Field {
	traceID := GetTraceID(c)
	if traceID == "" {
		return fields
	}

	traceField := zap.String("trace_id", traceID)
	return append([]zap.Field{traceField}, fields...)
}

// WithTraceIDFromContext adds trace ID to structured logging fields from context
func WithTraceIDFromContext(ctx context.Context, fields ...zap.Field) []zap.Field {
	traceID := GetTraceIDFromContext(ctx)
	if traceID == "" {
		return fields
	}

	traceField := zap.String("trace_id", traceID)
	return append([]zap.Field{traceField}, fields...)
}
