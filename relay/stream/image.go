package stream

import (
	"context"
	"math/rand"
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/common/render"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// Named SSE events of the image generation endpoints.
const (
	eventImagePartial   = "image_generation.partial_image"
	eventImageCompleted = "image_generation.completed"
)

// ImageOptions carries the per-request knobs of the image processors.
type ImageOptions struct {
	Model string
	Token string
	// N is the requested image count; with N == 1 a single upstream
	// candidate is picked at random, since the upstream renders at least
	// two per call.
	N              int
	ResponseFormat string
	// Size is echoed in socket stream events.
	Size string
}

// imagePayloads resolves generated image URLs into response payloads:
// rewritten URLs, or bare base64 when the format asks for inline data. An
// image whose download fails is dropped rather than replaced by a URL, so
// base64 responses never mix payload kinds.
func imagePayloads(ctx context.Context, opts ImageOptions, urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if opts.ResponseFormat == relaymodel.ImageFormatURL {
			out = append(out, ResolveAssetURL(ctx, opts.Token, u, filecache.MediaImage))
			continue
		}
		dataURI, err := ResolveBase64(ctx, opts.Token, u, filecache.MediaImage)
		if err != nil {
			logger.Logger.Warn("download generated image",
				zap.String("url", u), zap.Error(err))
			continue
		}
		if b64 := RawBase64(dataURI); b64 != "" {
			out = append(out, b64)
		}
	}
	return out
}

func emitImageEvent(c *gin.Context, event string, payload map[string]any) {
	if err := render.EventData(c, event, payload); err != nil {
		gmw.GetLogger(c).Warn("render image event", zap.Error(err))
	}
}

// ImageStream relays one upstream image stream as named image generation
// events: partial_image records while rendering, completed records once the
// final assets are known. completed=true means the stream ran to its natural
// end and the token should be billed.
func ImageStream(c *gin.Context, resp *http.Response, opts ImageOptions) (completed bool, errResp *relaymodel.ErrorWithStatusCode) {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	src := newLineSource(resp)
	defer src.abort()

	common.SetEventStreamHeaders(c)

	field := relaymodel.ImageResponseField(opts.ResponseFormat)
	targetIndex := -1
	if opts.N == 1 {
		targetIndex = rand.Intn(2)
	}

	var finals []string
	for {
		if clientGone(c.Request.Context()) {
			lg.Debug("client left image stream", zap.String("model", opts.Model))
			return false, nil
		}

		line, ok, err := src.next(config.StreamIdleTimeout)
		if !ok {
			if err == nil {
				break
			}
			if idle, isIdle := err.(*IdleTimeoutError); isIdle {
				lg.Warn("image stream idle timeout",
					zap.String("model", opts.Model),
					zap.Duration("idle", idle.Idle))
				return false, relaymodel.NewStreamIdleError(idle.Idle.Seconds())
			}
			lg.Warn("image stream read", zap.String("model", opts.Model), zap.Error(err))
			return false, relaymodel.NewUpstreamError(http.StatusBadGateway,
				"Upstream connection closed unexpectedly", err)
		}

		ev, decoded := DecodeEvent(line)
		if !decoded {
			continue
		}

		switch {
		case ev.ImageProgress != nil:
			idx := ev.ImageProgress.ImageIndex
			if opts.N == 1 && idx != targetIndex {
				continue
			}
			out := idx
			if opts.N == 1 {
				out = 0
			}
			emitImageEvent(c, eventImagePartial, map[string]any{
				"type":     eventImagePartial,
				field:      "",
				"index":    out,
				"progress": ev.ImageProgress.Progress,
			})

		case ev.ModelResponse != nil:
			finals = append(finals, imagePayloads(ctx, opts, ev.ModelResponse.ImageURLs)...)
		}
	}

	for index, payload := range finals {
		out := index
		if opts.N == 1 {
			if index != targetIndex {
				continue
			}
			out = 0
		}
		emitImageEvent(c, eventImageCompleted, map[string]any{
			"type":  eventImageCompleted,
			field:   payload,
			"index": out,
			"usage": relaymodel.ImageUsage{},
		})
	}
	return true, nil
}

// ImageCollect drains one upstream image stream and returns the resolved
// image payloads. Upstream hiccups are logged and whatever arrived before
// them is returned; the caller pads or re-requests as needed.
func ImageCollect(ctx context.Context, resp *http.Response, opts ImageOptions) []string {
	src := newLineSource(resp)
	defer src.abort()

	var images []string
	for {
		line, ok, err := src.next(config.StreamIdleTimeout)
		if !ok {
			if err != nil {
				logger.Logger.Warn("collect generated images",
					zap.String("model", opts.Model), zap.Error(err))
			}
			break
		}

		ev, decoded := DecodeEvent(line)
		if !decoded || ev.ModelResponse == nil {
			continue
		}
		images = append(images, imagePayloads(ctx, opts, ev.ModelResponse.ImageURLs)...)
	}
	return images
}
