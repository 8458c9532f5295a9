package router

import (
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/controller"
)

// SetRouter registers every HTTP surface of the gateway: the
// OpenAI-compatible relay routes, the admin JSON API, and liveness.
func SetRouter(router *gin.Engine) {
	SetRelayRouter(router)
	SetAdminRouter(router)

	router.GET("/health", controller.Health)
	router.NoRoute(controller.RelayNotFound)
}
