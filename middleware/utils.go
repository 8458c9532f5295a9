package middleware

import (
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/helper"
)

// AbortWithError ends the request with an OpenAI-style error body.
func AbortWithError(c *gin.Context, statusCode int, err error) {
	gmw.GetLogger(c).Warn("server abort",
		zap.Int("status_code", statusCode),
		zap.Error(err))

	c.JSON(statusCode, gin.H{
		"error": gin.H{
			"message": helper.MessageWithRequestId(err.Error(), c.GetString(helper.RequestIdKey)),
			"type":    "grok_api_error",
		},
	})
	c.Abort()
}
