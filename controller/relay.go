package controller

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/ctxkey"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/render"
	"github.com/fuchsia74/grok-api/monitor"
	rcontroller "github.com/fuchsia74/grok-api/relay/controller"
	"github.com/fuchsia74/grok-api/relay/model"
	"github.com/fuchsia74/grok-api/relay/relaymode"
)

// https://platform.openai.com/docs/api-reference/chat

func relayHelper(c *gin.Context, relayMode int) *model.ErrorWithStatusCode {
	switch relayMode {
	case relaymode.ChatCompletions:
		return rcontroller.RelayChatHelper(c)
	case relaymode.ImagesGenerations:
		return rcontroller.RelayImageHelper(c)
	case relaymode.ImagesEdits:
		return rcontroller.RelayImageEditHelper(c)
	case relaymode.VideoGenerations:
		switch {
		case strings.HasSuffix(c.Request.URL.Path, "/sse"):
			return rcontroller.StreamVideoSessionHelper(c)
		case strings.HasSuffix(c.Request.URL.Path, "/stop"):
			return rcontroller.StopVideoSessionHelper(c)
		default:
			return rcontroller.StartVideoSessionHelper(c)
		}
	case relaymode.VoiceToken:
		return rcontroller.VoiceTokenHelper(c)
	default:
		return notImplementedError()
	}
}

// Relay dispatches one client request to the matching entrypoint. Token
// fallover happens inside the entrypoint helpers, so all that remains here
// is metrics and rendering the terminal error. Errors surfacing after the
// response started streaming become a final SSE frame instead of a JSON
// body; the status line is already on the wire by then.
func Relay(c *gin.Context) {
	lg := gmw.GetLogger(c)
	relayMode := relaymode.GetByPath(c.Request.URL.Path)
	startTime := time.Now()

	lg.Debug("incoming relay request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("relay_mode", relayMode),
		zap.String("content_type", c.GetHeader("Content-Type")),
		zap.Int64("content_length", c.Request.ContentLength),
		zap.String("request_id", c.GetString(helper.RequestIdKey)),
	)

	bizErr := relayHelper(c, relayMode)
	modelName := c.GetString(ctxkey.RequestModel)
	if bizErr == nil {
		monitor.RecordRelayRequest(startTime, relaymode.Name(relayMode), modelName, c.Writer.Status())
		return
	}
	monitor.RecordRelayRequest(startTime, relaymode.Name(relayMode), modelName, bizErr.StatusCode)

	lg.Warn("relay request failed",
		zap.Int("status_code", bizErr.StatusCode),
		zap.String("model", modelName),
		zap.Error(bizErr.RawError))

	requestId := c.GetString(helper.RequestIdKey)
	bizErr.Error.Message = helper.MessageWithRequestId(bizErr.Error.Message, requestId)
	if c.Writer.Written() {
		_ = render.ObjectData(c, gin.H{"error": bizErr.Error})
		render.Done(c)
		return
	}
	c.JSON(bizErr.StatusCode, gin.H{
		"error": bizErr.Error,
	})
}

func notImplementedError() *model.ErrorWithStatusCode {
	msg := "API not implemented"
	return &model.ErrorWithStatusCode{
		StatusCode: http.StatusNotImplemented,
		Error: model.Error{
			Message:  msg,
			Type:     "grok_api_error",
			Code:     "api_not_implemented",
			RawError: errors.New(msg),
		},
	}
}

func RelayNotImplemented(c *gin.Context) {
	err := notImplementedError()
	c.JSON(err.StatusCode, gin.H{
		"error": err.Error,
	})
}

func RelayNotFound(c *gin.Context) {
	msg := fmt.Sprintf("Invalid URL (%s %s)", c.Request.Method, c.Request.URL.Path)
	errObj := model.Error{
		Message:  msg,
		Type:     "invalid_request_error",
		Param:    "",
		Code:     "",
		RawError: errors.New(msg),
	}
	c.JSON(http.StatusNotFound, gin.H{
		"error": errObj,
	})
}
