package stream

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/common/render"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// VideoOptions carries the per-request knobs of the video processors.
type VideoOptions struct {
	Model    string
	Token    string
	Thinking bool
}

// buildVideoHTML renders the inline player returned when the video format
// is html. escape hardens URLs embedded in streamed chat content.
func buildVideoHTML(videoURL, thumbnailURL string, escape bool) string {
	if escape {
		videoURL = html.EscapeString(videoURL)
		thumbnailURL = html.EscapeString(thumbnailURL)
	}
	poster := ""
	if thumbnailURL != "" {
		poster = ` poster="` + thumbnailURL + `"`
	}
	return `<video id="video" controls="" preload="none"` + poster + `>
  <source id="mp4" src="` + videoURL + `" type="video/mp4">
</video>`
}

// videoContent resolves the finished video and optional thumbnail into the
// client-facing payload, a bare URL or an HTML player per config.
func videoContent(ctx context.Context, token, videoURL, thumbnailURL string, escape bool) string {
	finalVideo := ResolveAssetURL(ctx, token, videoURL, filecache.MediaVideo)
	finalThumbnail := ""
	if thumbnailURL != "" {
		finalThumbnail = ResolveAssetURL(ctx, token, thumbnailURL, filecache.MediaImage)
	}
	if strings.ToLower(config.VideoFormat) == "url" {
		return finalVideo
	}
	return buildVideoHTML(finalVideo, finalThumbnail, escape)
}

// VideoStream relays one upstream video generation stream as chat chunks:
// progress narration inside a <think> block while rendering, then the
// finished video as a URL or HTML player. completed=true means the stream
// ran to its natural end and the token should be billed.
func VideoStream(c *gin.Context, resp *http.Response, opts VideoOptions) (completed bool, errResp *relaymodel.ErrorWithStatusCode) {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	src := newLineSource(resp)
	defer src.abort()

	common.SetEventStreamHeaders(c)

	em := newChatEmitter(c, opts.Model)
	roleSent := false
	thinkOpen := false

	for {
		if clientGone(c.Request.Context()) {
			lg.Debug("client left video stream", zap.String("model", opts.Model))
			return false, nil
		}

		line, ok, err := src.next(config.VideoIdleTimeout)
		if !ok {
			if err == nil {
				break
			}
			if idle, isIdle := err.(*IdleTimeoutError); isIdle {
				lg.Warn("video stream idle timeout",
					zap.String("model", opts.Model),
					zap.Duration("idle", idle.Idle))
				return false, relaymodel.NewStreamIdleError(idle.Idle.Seconds())
			}
			lg.Warn("video stream read", zap.String("model", opts.Model), zap.Error(err))
			return false, relaymodel.NewUpstreamError(http.StatusBadGateway,
				"Upstream connection closed unexpectedly", err)
		}

		ev, decoded := DecodeEvent(line)
		if !decoded {
			continue
		}
		em.observe(ev)

		if !roleSent {
			em.role()
			roleSent = true
		}

		vp := ev.VideoProgress
		if vp == nil {
			continue
		}

		if opts.Thinking {
			if !thinkOpen {
				em.content("<think>\n")
				thinkOpen = true
			}
			em.content(fmt.Sprintf("正在生成视频中，当前进度%d%%\n", vp.Progress))
		}

		if vp.Progress != 100 {
			continue
		}
		if thinkOpen {
			em.content("</think>\n")
			thinkOpen = false
		}
		if vp.VideoURL == "" {
			continue
		}
		em.content(videoContent(ctx, opts.Token, vp.VideoURL, vp.ThumbnailImageURL, true))
		lg.Info("video generated", zap.String("url", vp.VideoURL))
	}

	if thinkOpen {
		em.content("</think>\n")
	}
	em.finish("stop")
	render.Done(c)
	return true, nil
}

// VideoCollect drains one upstream video stream into a single chat
// completion whose content is the finished video payload. Upstream hiccups
// are logged and whatever was resolved so far is returned.
func VideoCollect(ctx context.Context, resp *http.Response, opts VideoOptions) *relaymodel.TextResponse {
	src := newLineSource(resp)
	defer src.abort()

	created := helper.GetTimestamp()
	var responseID, content string

	for {
		line, ok, err := src.next(config.VideoIdleTimeout)
		if !ok {
			if err != nil {
				logger.Logger.Warn("collect video response",
					zap.String("model", opts.Model), zap.Error(err))
			}
			break
		}

		ev, decoded := DecodeEvent(line)
		if !decoded {
			continue
		}

		vp := ev.VideoProgress
		if vp == nil || vp.Progress != 100 || vp.VideoURL == "" {
			continue
		}
		responseID = ev.ResponseID
		content = videoContent(ctx, opts.Token, vp.VideoURL, vp.ThumbnailImageURL, false)
		logger.Logger.Info("video generated", zap.String("url", vp.VideoURL))
	}

	if responseID == "" {
		responseID = newChatcmplID()
	}
	return &relaymodel.TextResponse{
		Id:      responseID,
		Object:  "chat.completion",
		Created: created,
		Model:   opts.Model,
		Choices: []relaymodel.TextResponseChoice{
			{Index: 0, Message: relaymodel.NewAssistantMessage(content), FinishReason: "stop"},
		},
	}
}
