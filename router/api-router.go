package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/controller"
	"github.com/fuchsia74/grok-api/middleware"
)

// SetAdminRouter wires the management surface. JSON endpoints are gzipped;
// the batch progress stream is SSE and must not pass through gzip, so it
// hangs off a separate group.
func SetAdminRouter(router *gin.Engine) {
	adminRouter := router.Group("/admin")

	jsonRouter := adminRouter.Group("", gzip.Gzip(gzip.DefaultCompression))
	jsonRouter.POST("/login", controller.Login)
	jsonRouter.POST("/logout", controller.Logout)

	authed := jsonRouter.Group("", middleware.AdminAuth())
	{
		authed.GET("/status", controller.GetStatus)

		authed.GET("/tokens", controller.GetAllTokens)
		authed.POST("/tokens", controller.AddTokens)
		authed.GET("/tokens/:id", controller.GetToken)
		authed.PUT("/tokens/:id", controller.UpdateToken)
		authed.DELETE("/tokens/:id", controller.DeleteToken)

		authed.POST("/tokens/refresh/async", controller.StartUsageRefresh)
		authed.POST("/tokens/nsfw/enable/async", controller.StartNSFWEnable)
		authed.POST("/cache/online/clear/async", controller.StartAssetClear)
		authed.POST("/cache/online/load/async", controller.StartAssetLoad)

		authed.GET("/batch/:task_id", controller.GetBatchTask)
		authed.POST("/batch/:task_id/cancel", controller.CancelBatchTask)

		authed.GET("/cache", controller.GetCacheEntries)
		authed.DELETE("/cache/:media_type/:name", controller.DeleteCacheEntry)
		authed.POST("/cache/clear", controller.ClearCache)

		authed.GET("/traces/:trace_id", controller.GetTraceByTraceId)
	}

	adminRouter.GET("/batch/:task_id/stream", middleware.AdminAuth(), controller.StreamBatchTask)

	if config.EnablePrometheusMetrics {
		router.GET("/metrics", middleware.AdminAuth(), gin.WrapH(promhttp.Handler()))
	}
}
