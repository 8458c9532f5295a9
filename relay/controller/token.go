package controller

import (
	stderrors "errors"
	"fmt"
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
	"github.com/fuchsia74/grok-api/relay/routing"
)

const noTokenMessage = "No available tokens. Please try again later."

// pickToken returns an active credential from the candidate pools. A miss on
// a fresh request (nothing tried yet) probes cooling tokens once before
// giving up; retries skip the probe so fallover stays fast.
func pickToken(c *gin.Context, mgr *pool.Manager, candidates []string, tried map[string]bool) *model.TokenInfo {
	if token := mgr.GetFromCandidates(candidates, tried); token != nil {
		return token
	}
	if len(tried) > 0 || !config.TokenAutoRefresh {
		return nil
	}
	if recovered := mgr.RefreshCoolingTokens(gmw.Ctx(c)); recovered > 0 {
		gmw.GetLogger(c).Info("recovered cooling tokens",
			zap.Int("recovered", recovered))
		return mgr.GetFromCandidates(candidates, tried)
	}
	return nil
}

// noTokensError is the terminal response when the pool ran dry. lastErr
// carries the mapped upstream error of the final attempt, so an exhausted
// fallover surfaces the upstream's own rate limit rather than a generic one.
func noTokensError(lastErr *relaymodel.ErrorWithStatusCode) *relaymodel.ErrorWithStatusCode {
	if lastErr != nil {
		return lastErr
	}
	return relaymodel.NewRateLimitError(noTokenMessage)
}

// upstreamErrorResponse maps an upstream client failure onto the public
// error envelope. Status-bearing failures become 502s except rate limits,
// which keep their 429; transport failures surface as 503.
func upstreamErrorResponse(err error) *relaymodel.ErrorWithStatusCode {
	var ue *grok.UpstreamError
	if stderrors.As(err, &ue) {
		if ue.IsRateLimited() {
			return relaymodel.NewRateLimitError("Upstream rate limit exceeded. Please try again later.")
		}
		return relaymodel.NewUpstreamError(http.StatusBadGateway,
			fmt.Sprintf("Upstream returned status %d", ue.Status), err)
	}
	return relaymodel.NewUpstreamError(http.StatusServiceUnavailable,
		"Upstream request failed", err)
}

// consumeOnSuccess charges one completed generation against the token's
// quota window. Accounting failures are logged, never surfaced: the client
// already has its response.
func consumeOnSuccess(c *gin.Context, mgr *pool.Manager, tokenStr, modelID string) {
	effort := routing.EffortForModel(modelID)
	cost := mgr.Consume(tokenStr, effort)
	if cost < 0 {
		gmw.GetLogger(c).Warn("consume on unknown token",
			zap.String("token", helper.MaskToken(tokenStr)))
		return
	}
	gmw.GetLogger(c).Debug("consumed token quota",
		zap.String("token", helper.MaskToken(tokenStr)),
		zap.String("model", modelID),
		zap.Int("cost", cost))
}
