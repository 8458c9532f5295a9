package controller

import (
	"context"
	stderrors "errors"
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
	"github.com/fuchsia74/grok-api/relay/retry"
	"github.com/fuchsia74/grok-api/relay/routing"
	"github.com/fuchsia74/grok-api/relay/stream"
)

// RelayChatHelper serves POST /v1/chat/completions. After validation the
// conversation is flattened into a single prompt and the token pool is
// walked: each attempt uploads attachments under the candidate token (file
// ids are account-bound), starts the upstream chat and hands the response to
// a stream processor. A rate-limited token is parked in cooling and the next
// candidate takes over; other upstream failures end the request.
func RelayChatHelper(c *gin.Context) *relaymodel.ErrorWithStatusCode {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	req := &relaymodel.ChatRequest{}
	if err := common.UnmarshalBodyReusable(c, req); err != nil {
		return relaymodel.NewValidationError(
			"Invalid request body: "+err.Error(), "", "invalid_request")
	}
	if errResp := validateChatRequest(req); errResp != nil {
		return errResp
	}

	desc, _ := routing.Lookup(req.Model)
	if desc.Kind == routing.KindVideo {
		return relayVideoChat(c, req)
	}

	prompt, attachments, errResp := extractMessages(req.Messages, false)
	if errResp != nil {
		return errResp
	}

	isStream := config.ChatStreamDefault
	if req.Stream != nil {
		isStream = req.Stream.Bool()
	}
	thinking := config.ChatThinkingDefault
	if req.Thinking != nil {
		thinking = *req.Thinking
	}

	mgr := pool.Default()
	if err := mgr.ReloadIfStale(ctx); err != nil {
		lg.Warn("reload token pool", zap.Error(err))
	}

	candidates := routing.PoolCandidatesForModel(req.Model)
	retryCfg := retry.DefaultConfig().Without(http.StatusTooManyRequests)
	maxAttempts := config.TokenMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	tried := make(map[string]bool, maxAttempts)
	var lastErr *relaymodel.ErrorWithStatusCode

	for attempt := 0; attempt < maxAttempts; attempt++ {
		info := pickToken(c, mgr, candidates, tried)
		if info == nil {
			break
		}
		token := info.Token
		tried[token] = true

		fileIDs, err := uploadAttachments(ctx, token, attachments)
		if err != nil {
			lg.Warn("upload attachments",
				zap.String("token", helper.MaskToken(token)), zap.Error(err))
			return upstreamErrorResponse(err)
		}

		payload := grok.NewChatPayload(prompt, desc.UpstreamModel, desc.Mode, fileIDs)

		var resp *http.Response
		err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
			var callErr error
			resp, callErr = grok.StartChat(ctx, token, payload)
			return callErr
		})
		if err != nil {
			var ue *grok.UpstreamError
			if stderrors.As(err, &ue) {
				mgr.RecordFail(token, ue.Status, ue.Body)
				if ue.IsRateLimited() {
					mgr.MarkRateLimited(token)
					lastErr = upstreamErrorResponse(err)
					lg.Info("token rate limited, falling over",
						zap.String("token", helper.MaskToken(token)),
						zap.Int("attempt", attempt+1))
					continue
				}
			}
			lg.Warn("start chat",
				zap.String("token", helper.MaskToken(token)), zap.Error(err))
			return upstreamErrorResponse(err)
		}
		mgr.RecordSuccess(token, false)

		opts := stream.ChatOptions{
			Model:    req.Model,
			Token:    token,
			Thinking: thinking,
			Prompt:   prompt,
		}
		if isStream {
			completed, errResp := stream.ChatStream(c, resp, opts)
			if completed {
				consumeOnSuccess(c, mgr, token, req.Model)
			}
			return errResp
		}
		result := stream.ChatCollect(ctx, resp, opts)
		consumeOnSuccess(c, mgr, token, req.Model)
		c.JSON(http.StatusOK, result)
		return nil
	}

	return noTokensError(lastErr)
}
