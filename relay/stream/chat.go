// Package stream turns upstream conversation streams into OpenAI-shaped
// responses. Each processor owns one upstream response body and drives it to
// completion, enforcing the idle watchdog and the tag filter on the way.
package stream

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/common/render"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// ChatOptions carries the per-request knobs shared by the chat processors.
type ChatOptions struct {
	// Model is echoed in every response envelope.
	Model string
	// Token is the session token, reused for asset downloads.
	Token string
	// Thinking narrates image generation progress inside a <think> block.
	Thinking bool
	// Prompt is the flattened prompt text, used for usage estimation.
	Prompt string
}

func newChatcmplID() string {
	u := uuid.New()
	return "chatcmpl-" + hex.EncodeToString(u[:])[:24]
}

// chatEmitter frames chat.completion.chunk payloads. The id starts generated
// and is replaced by the upstream response id as soon as one is seen.
type chatEmitter struct {
	c           *gin.Context
	model       string
	created     int64
	id          string
	fingerprint string
}

func newChatEmitter(c *gin.Context, model string) *chatEmitter {
	return &chatEmitter{
		c:       c,
		model:   model,
		created: helper.GetTimestamp(),
		id:      newChatcmplID(),
	}
}

func (e *chatEmitter) observe(ev Event) {
	if ev.ResponseID != "" {
		e.id = ev.ResponseID
	}
	if ev.ModelHash != "" && e.fingerprint == "" {
		e.fingerprint = ev.ModelHash
	}
}

func (e *chatEmitter) chunk(delta relaymodel.Message, finish *string) {
	payload := relaymodel.ChatCompletionsStreamResponse{
		Id:                e.id,
		Object:            "chat.completion.chunk",
		Created:           e.created,
		Model:             e.model,
		SystemFingerprint: e.fingerprint,
		Choices: []relaymodel.ChatCompletionsStreamResponseChoice{
			{Index: 0, Delta: delta, FinishReason: finish},
		},
	}
	if err := render.ObjectData(e.c, payload); err != nil {
		gmw.GetLogger(e.c).Warn("render chat chunk", zap.Error(err))
	}
}

func (e *chatEmitter) role() {
	e.chunk(relaymodel.Message{Role: relaymodel.RoleAssistant, Content: ""}, nil)
}

func (e *chatEmitter) content(text string) {
	e.chunk(relaymodel.Message{Content: text}, nil)
}

func (e *chatEmitter) finish(reason string) {
	e.chunk(relaymodel.Message{}, &reason)
}

// imageIDFrom extracts the asset id segment of a generated image URL, the
// second-to-last path element.
func imageIDFrom(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return "image"
}

// imageMarkdown renders one generated image as a markdown line, inlined as a
// data URI when the deployment prefers base64. A failed inline falls back to
// the rewritten URL so the image reference is never lost.
func imageMarkdown(ctx context.Context, token, rawURL string) string {
	imgID := imageIDFrom(rawURL)
	if config.ImageFormat == "base64" {
		dataURI, err := ResolveBase64(ctx, token, rawURL, filecache.MediaImage)
		if err != nil {
			logger.Logger.Warn("inline generated image", zap.Error(err))
		} else if dataURI != "" {
			return "![" + imgID + "](" + dataURI + ")\n"
		}
	}
	return "![" + imgID + "](" + ResolveAssetURL(ctx, token, rawURL, filecache.MediaImage) + ")\n"
}

// ChatStream relays one upstream chat stream as OpenAI chunks terminated by
// [DONE]. completed reports whether the stream ran to its natural end, which
// is the caller's cue to bill the session token. A client disconnect returns
// (false, nil): nothing to render, nothing to bill.
func ChatStream(c *gin.Context, resp *http.Response, opts ChatOptions) (completed bool, errResp *relaymodel.ErrorWithStatusCode) {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	src := newLineSource(resp)
	defer src.abort()

	common.SetEventStreamHeaders(c)

	em := newChatEmitter(c, opts.Model)
	filter := NewTagFilter(config.ParseFilterTags())
	roleSent := false
	thinkOpen := false

	for {
		if clientGone(c.Request.Context()) {
			lg.Debug("client left chat stream", zap.String("model", opts.Model))
			return false, nil
		}

		line, ok, err := src.next(config.StreamIdleTimeout)
		if !ok {
			if err == nil {
				break
			}
			if idle, isIdle := err.(*IdleTimeoutError); isIdle {
				lg.Warn("chat stream idle timeout",
					zap.String("model", opts.Model),
					zap.Duration("idle", idle.Idle))
				return false, relaymodel.NewStreamIdleError(idle.Idle.Seconds())
			}
			lg.Warn("chat stream read", zap.String("model", opts.Model), zap.Error(err))
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

		switch {
		case ev.ImageProgress != nil:
			if !opts.Thinking {
				continue
			}
			if !thinkOpen {
				em.content("<think>\n")
				thinkOpen = true
			}
			em.content(fmt.Sprintf("正在生成第%d张图片中，当前进度%d%%\n",
				ev.ImageProgress.ImageIndex+1, ev.ImageProgress.Progress))

		case ev.ModelResponse != nil:
			mr := ev.ModelResponse
			if thinkOpen {
				if mr.Message != "" {
					em.content(mr.Message + "\n")
				}
				em.content("</think>\n")
				thinkOpen = false
			}
			for _, u := range mr.ImageURLs {
				em.content(imageMarkdown(ctx, opts.Token, u))
			}
			if mr.ModelHash != "" {
				em.fingerprint = mr.ModelHash
			}

		case ev.Token != nil:
			if *ev.Token == "" {
				continue
			}
			if filtered := filter.Feed(*ev.Token); filtered != "" {
				em.content(filtered)
			}
		}
	}

	if rest := filter.Flush(); rest != "" {
		em.content(rest)
	}
	if thinkOpen {
		em.content("</think>\n")
	}
	em.finish("stop")
	render.Done(c)
	return true, nil
}

// ChatCollect drains one upstream chat stream into a single chat.completion
// object. Upstream hiccups after content started arriving are logged and the
// partial content is returned, so a late idle timeout does not discard an
// otherwise complete answer.
func ChatCollect(ctx context.Context, resp *http.Response, opts ChatOptions) *relaymodel.TextResponse {
	src := newLineSource(resp)
	defer src.abort()

	created := helper.GetTimestamp()
	var responseID, fingerprint, content string

	for {
		line, ok, err := src.next(config.StreamIdleTimeout)
		if !ok {
			if err != nil {
				logger.Logger.Warn("collect chat response",
					zap.String("model", opts.Model), zap.Error(err))
			}
			break
		}

		ev, decoded := DecodeEvent(line)
		if !decoded {
			continue
		}
		if ev.ModelHash != "" && fingerprint == "" {
			fingerprint = ev.ModelHash
		}

		mr := ev.ModelResponse
		if mr == nil {
			continue
		}
		responseID = mr.ResponseID
		content = mr.Message
		if len(mr.ImageURLs) > 0 {
			content += "\n"
			for _, u := range mr.ImageURLs {
				content += imageMarkdown(ctx, opts.Token, u)
			}
		}
		if mr.ModelHash != "" {
			fingerprint = mr.ModelHash
		}
	}

	content = StripTags(content, config.ParseFilterTags())

	if responseID == "" {
		responseID = newChatcmplID()
	}
	return &relaymodel.TextResponse{
		Id:                responseID,
		Object:            "chat.completion",
		Created:           created,
		Model:             opts.Model,
		SystemFingerprint: fingerprint,
		Choices: []relaymodel.TextResponseChoice{
			{Index: 0, Message: relaymodel.NewAssistantMessage(content), FinishReason: "stop"},
		},
		Usage: EstimateUsage(opts.Prompt, content),
	}
}
