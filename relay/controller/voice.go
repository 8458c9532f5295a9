package controller

import (
	"net/http"
	"strconv"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// VoiceTokenHelper brokers a LiveKit access token for the upstream voice
// mode. Any working credential will do, so the pick tries basic before
// super and skips quota accounting entirely: voice sessions are not billed
// against the generation window.
func VoiceTokenHelper(c *gin.Context) *relaymodel.ErrorWithStatusCode {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	voice := c.DefaultQuery("voice", "ara")
	personality := c.DefaultQuery("personality", "assistant")
	speed, err := strconv.ParseFloat(c.DefaultQuery("speed", "1.0"), 64)
	if err != nil {
		return relaymodel.NewValidationError(
			"speed must be a number", "speed", "invalid_speed")
	}

	mgr := pool.Default()
	if err := mgr.ReloadIfStale(ctx); err != nil {
		lg.Warn("reload token pool", zap.Error(err))
	}
	info := mgr.GetToken(model.PoolBasic, nil)
	if info == nil {
		info = mgr.GetToken(model.PoolSuper, nil)
	}
	if info == nil {
		return relaymodel.NewError(http.StatusServiceUnavailable,
			relaymodel.ErrorTypeUpstream, "no_token", "No available tokens for voice mode")
	}
	token := info.Token

	session, err := grok.CreateVoiceSession(ctx, token, voice, personality, speed)
	if err != nil {
		lg.Warn("create voice session",
			zap.String("token", helper.MaskToken(token)), zap.Error(err))
		return upstreamErrorResponse(err)
	}

	c.JSON(http.StatusOK, relaymodel.VoiceTokenResponse{
		Token:           session.AccessToken,
		Url:             grok.LivekitURL,
		ParticipantName: session.ParticipantName,
		RoomName:        session.RoomName,
	})
	return nil
}
