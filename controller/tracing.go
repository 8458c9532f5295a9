package controller

import (
	"net/http"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/model"
)

// GetTraceByTraceId returns the milestone timeline of one relayed request.
func GetTraceByTraceId(c *gin.Context) {
	traceId := c.Param("trace_id")
	if traceId == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "trace_id parameter is required",
		})
		return
	}

	trace, err := model.GetTraceByTraceId(traceId)
	if err != nil {
		logger.Logger.Error("failed to get trace by trace ID",
			zap.Error(err),
			zap.String("trace_id", traceId))
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "trace not found",
		})
		return
	}

	timestamps, err := trace.GetTraceTimestamps()
	if err != nil {
		logger.Logger.Error("failed to parse trace timestamps",
			zap.Error(err),
			zap.String("trace_id", traceId))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to parse trace timestamps",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data": gin.H{
			"id":         trace.Id,
			"trace_id":   trace.TraceId,
			"url":        trace.URL,
			"method":     trace.Method,
			"model":      trace.Model,
			"token_id":   trace.TokenId,
			"attempts":   trace.Attempts,
			"body_size":  trace.BodySize,
			"status":     trace.Status,
			"created_at": trace.CreatedAt,
			"updated_at": trace.UpdatedAt,
			"timestamps": timestamps,
		},
	})
}
