package router

import (
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/controller"
	"github.com/fuchsia74/grok-api/middleware"
)

// SetRelayRouter wires the OpenAI-compatible surface.
// https://platform.openai.com/docs/api-reference/introduction
func SetRelayRouter(router *gin.Engine) {
	router.Use(middleware.CORS())

	// Cached assets carry gateway-generated paths, so players and <img>
	// tags can load them without an API key. A bearer is still accepted.
	router.GET("/v1/files/*filepath", controller.ServeCachedFile)

	modelsRouter := router.Group("/v1/models")
	modelsRouter.Use(middleware.APIKeyAuth())
	{
		modelsRouter.GET("", controller.ListModels)
		modelsRouter.GET("/:model", controller.RetrieveModel)
	}

	relayV1Router := router.Group("/v1")
	relayV1Router.Use(middleware.RelayPanicRecover(), middleware.APIKeyAuth(), middleware.Distribute())
	{
		relayV1Router.POST("/chat/completions", controller.Relay)
		relayV1Router.POST("/images/generations", controller.Relay)
		relayV1Router.POST("/images/edits", controller.Relay)
		relayV1Router.POST("/video/generations", controller.Relay)
		relayV1Router.GET("/video/generations/sse", controller.Relay)
		relayV1Router.POST("/video/generations/stop", controller.Relay)
		relayV1Router.GET("/admin/voice/token", controller.Relay)
	}
}
