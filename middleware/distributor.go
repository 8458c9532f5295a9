package middleware

import (
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/ctxkey"
	"github.com/fuchsia74/grok-api/relay/relaymode"
)

// ModelRequest is the least amount of body needed to identify the model.
type ModelRequest struct {
	Model string `json:"model" form:"model"`
}

// Distribute resolves the relay mode from the route and stashes the
// requested model for logging and metrics. Model validation happens later
// in the relay controllers, so unknown names still pass through and fail
// with a proper API error instead of a routing one.
func Distribute() func(c *gin.Context) {
	return func(c *gin.Context) {
		relayMode := relaymode.GetByPath(c.Request.URL.Path)
		c.Set(ctxkey.RelayMode, relayMode)

		if modelName := requestModel(c, relayMode); modelName != "" {
			c.Set(ctxkey.RequestModel, modelName)
			gmw.GetLogger(c).Debug("request model resolved",
				zap.String("model", modelName),
				zap.String("relay_mode", relaymode.Name(relayMode)))
		}
		c.Next()
	}
}

// requestModel sniffs the model field without consuming the body. Multipart
// uploads carry it as a form value instead of JSON.
func requestModel(c *gin.Context, relayMode int) string {
	switch relayMode {
	case relaymode.ChatCompletions, relaymode.ImagesGenerations, relaymode.VideoGenerations:
		var req ModelRequest
		if err := common.UnmarshalBodyReusable(c, &req); err != nil {
			return ""
		}
		return req.Model
	case relaymode.ImagesEdits:
		return c.PostForm("model")
	default:
		return ""
	}
}
