package controller

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/render"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
	"github.com/fuchsia74/grok-api/relay/retry"
	"github.com/fuchsia74/grok-api/relay/routing"
	"github.com/fuchsia74/grok-api/relay/stream"
)

// Upstream media post types referenced as video generation parents.
const (
	mediaPostImage = "MEDIA_POST_TYPE_IMAGE"
	mediaPostVideo = "MEDIA_POST_TYPE_VIDEO"
)

// videoModeFlag maps a preset onto the mode flag appended to the generation
// prompt. The flag spellings are what the upstream web client sends; only
// custom passes the prompt through unstyled.
func videoModeFlag(preset string) string {
	switch preset {
	case "fun":
		return "--mode=extremely-crazy"
	case "normal":
		return "--mode=normal"
	case "spicy":
		return "--mode=extremely-spicy-or-crazy"
	}
	return "--mode=custom"
}

// relayVideoChat serves chat completions against video-capable models. The
// token is chosen once by resolution and length; there is no fallover, a
// failed generation fails the request. An image attachment, when present,
// becomes the parent media post so the clip animates it.
func relayVideoChat(c *gin.Context, req *relaymodel.ChatRequest) *relaymodel.ErrorWithStatusCode {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	cfg, errResp := normalizeVideoConfig(req.VideoConfig)
	if errResp != nil {
		return errResp
	}
	prompt, attachments, errResp := extractMessages(req.Messages, true)
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
	info := mgr.GetTokenForVideo(cfg.ResolutionName, cfg.VideoLength, nil)
	if info == nil {
		return relaymodel.NewRateLimitError(noTokenMessage)
	}
	token := info.Token

	var imageURL string
	for _, att := range attachments {
		if att.kind != attachmentImage {
			continue
		}
		filename, mime, b64, err := grok.PrepareAttachment(ctx, att.data)
		if err != nil {
			return upstreamErrorResponse(err)
		}
		uploaded, err := grok.UploadFile(ctx, token, filename, mime, b64)
		if err != nil {
			lg.Warn("upload video reference image",
				zap.String("token", helper.MaskToken(token)), zap.Error(err))
			return upstreamErrorResponse(err)
		}
		imageURL = grok.AssetURL(uploaded.FileURI)
		break
	}

	mediaType, mediaURL := mediaPostVideo, ""
	if imageURL != "" {
		mediaType, mediaURL = mediaPostImage, imageURL
	}
	post, err := grok.CreateMediaPost(ctx, token, mediaType, mediaURL)
	if err != nil {
		var ue *grok.UpstreamError
		if stderrors.As(err, &ue) {
			mgr.RecordFail(token, ue.Status, ue.Body)
		}
		lg.Warn("create media post",
			zap.String("token", helper.MaskToken(token)), zap.Error(err))
		return upstreamErrorResponse(err)
	}

	payload := grok.NewVideoChatPayload(prompt+" "+videoModeFlag(cfg.Preset), grok.VideoGenConfig{
		AspectRatio:    cfg.AspectRatio,
		ParentPostID:   post.ID,
		ResolutionName: cfg.ResolutionName,
		VideoLength:    cfg.VideoLength,
	})

	var resp *http.Response
	err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		var callErr error
		resp, callErr = grok.StartChat(ctx, token, payload, grok.ImagineReferer(post.ID))
		return callErr
	})
	if err != nil {
		var ue *grok.UpstreamError
		if stderrors.As(err, &ue) {
			mgr.RecordFail(token, ue.Status, ue.Body)
		}
		lg.Warn("start video chat",
			zap.String("token", helper.MaskToken(token)), zap.Error(err))
		return upstreamErrorResponse(err)
	}
	mgr.RecordSuccess(token, false)

	opts := stream.VideoOptions{Model: req.Model, Token: token, Thinking: thinking}
	if isStream {
		completed, errResp := stream.VideoStream(c, resp, opts)
		if completed {
			consumeOnSuccess(c, mgr, token, req.Model)
		}
		return errResp
	}
	result := stream.VideoCollect(ctx, resp, opts)
	consumeOnSuccess(c, mgr, token, req.Model)
	c.JSON(http.StatusOK, result)
	return nil
}

// videoSessionTTL bounds how long a started generation waits for its SSE
// pickup.
const videoSessionTTL = 10 * time.Minute

// videoSession is a prepared generation parked between the start call and
// the stream that runs it.
type videoSession struct {
	Prompt          string
	AspectRatio     string
	VideoLength     int
	ResolutionName  string
	Preset          string
	ImageURL        string
	ReasoningEffort string
}

var videoSessions = gocache.New(videoSessionTTL, 2*time.Minute)

// videoModelID returns the catalog's video-capable model.
func videoModelID() (string, bool) {
	for _, d := range routing.All() {
		if d.Kind == routing.KindVideo {
			return d.ID, true
		}
	}
	return "", false
}

// StartVideoSessionHelper serves POST /v1/video/generations. It validates
// the request, parks it as a session and hands back a task id the client
// streams from. Presets default to normal here; the chat surface defaults
// to custom so raw prompts keep their style.
func StartVideoSessionHelper(c *gin.Context) *relaymodel.ErrorWithStatusCode {
	req := &relaymodel.VideoStartRequest{}
	if err := common.UnmarshalBodyReusable(c, req); err != nil {
		return relaymodel.NewValidationError(
			"Invalid request body: "+err.Error(), "", "invalid_request")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return relaymodel.NewValidationError(
			"Prompt cannot be empty", "prompt", "empty_prompt")
	}
	ratioInput := strings.TrimSpace(req.AspectRatio)
	if ratioInput == "" {
		ratioInput = "3:2"
	}
	ratio, ok := relaymodel.NormalizeVideoAspectRatio(ratioInput)
	if !ok {
		return relaymodel.NewValidationError(
			"aspect_ratio must be one of ['16:9', '9:16', '3:2', '2:3', '1:1']",
			"aspect_ratio", "invalid_aspect_ratio")
	}
	length := req.VideoLength
	if length == 0 {
		length = 6
	}
	if !relaymodel.ValidVideoLength(length) {
		return relaymodel.NewValidationError(
			"video_length must be 6, 10, or 15 seconds",
			"video_length", "invalid_video_length")
	}
	resolution := req.ResolutionName
	if resolution == "" {
		resolution = "480p"
	}
	if !relaymodel.ValidVideoResolution(resolution) {
		return relaymodel.NewValidationError(
			"resolution_name must be one of ['480p', '720p']",
			"resolution_name", "invalid_resolution")
	}
	preset := req.Preset
	if preset == "" {
		preset = "normal"
	}
	if !relaymodel.ValidVideoPreset(preset) {
		return relaymodel.NewValidationError(
			"preset must be one of ['fun', 'normal', 'spicy', 'custom']",
			"preset", "invalid_preset")
	}
	imageURL := strings.TrimSpace(req.ImageUrl)
	if imageURL != "" {
		if errResp := validateMediaInput(imageURL, "image_url", "image_url"); errResp != nil {
			return errResp
		}
	}
	effort := strings.TrimSpace(req.ReasoningEffort)
	if effort != "" && !relaymodel.ValidReasoningEffort(effort) {
		return relaymodel.NewValidationError(
			"reasoning_effort must be one of none, minimal, low, medium, high, xhigh",
			"reasoning_effort", "invalid_reasoning_effort")
	}

	u := uuid.New()
	taskID := hex.EncodeToString(u[:])
	videoSessions.Set(taskID, &videoSession{
		Prompt:          prompt,
		AspectRatio:     ratio,
		VideoLength:     length,
		ResolutionName:  resolution,
		Preset:          preset,
		ImageURL:        imageURL,
		ReasoningEffort: effort,
	}, gocache.DefaultExpiration)

	c.JSON(http.StatusOK, relaymodel.VideoStartResponse{TaskId: taskID, AspectRatio: ratio})
	return nil
}

// StreamVideoSessionHelper serves GET /v1/video/sse. Sessions are one-shot:
// the stream that picks one up also drops it, finished or not. Everything
// after the session resolves is SSE, including failures.
func StreamVideoSessionHelper(c *gin.Context) *relaymodel.ErrorWithStatusCode {
	taskID := strings.TrimSpace(c.Query("task_id"))
	raw, found := videoSessions.Get(taskID)
	if taskID == "" || !found {
		return relaymodel.NewError(http.StatusNotFound,
			relaymodel.ErrorTypeValidation, "task_not_found", "Task not found")
	}
	defer videoSessions.Delete(taskID)
	session := raw.(*videoSession)

	videoModel, ok := videoModelID()
	if !ok {
		sseError(c, "Video model is not available.", "model_not_supported")
		return nil
	}

	var content any = session.Prompt
	if session.ImageURL != "" {
		content = []any{
			map[string]any{"type": relaymodel.ContentTypeText, "text": session.Prompt},
			map[string]any{
				"type":      relaymodel.ContentTypeImageURL,
				"image_url": map[string]any{"url": session.ImageURL},
			},
		}
	}
	streamOn := relaymodel.FlexBool(true)
	req := &relaymodel.ChatRequest{
		Model:           videoModel,
		Messages:        []relaymodel.Message{{Role: relaymodel.RoleUser, Content: content}},
		Stream:          &streamOn,
		ReasoningEffort: session.ReasoningEffort,
		VideoConfig: &relaymodel.VideoConfig{
			AspectRatio:    session.AspectRatio,
			VideoLength:    session.VideoLength,
			ResolutionName: session.ResolutionName,
			Preset:         session.Preset,
		},
	}
	if errResp := relayVideoChat(c, req); errResp != nil {
		code, _ := errResp.Error.Code.(string)
		sseError(c, errResp.Error.Message, code)
	}
	return nil
}

// sseError emits a terminal error event on a stream that may have already
// sent data.
func sseError(c *gin.Context, message, code string) {
	if !c.Writer.Written() {
		common.SetEventStreamHeaders(c)
	}
	_ = render.ObjectData(c, gin.H{"error": message, "code": code})
	render.Done(c)
}

// StopVideoSessionHelper serves POST /v1/video/stop, dropping any parked
// sessions named by the request.
func StopVideoSessionHelper(c *gin.Context) *relaymodel.ErrorWithStatusCode {
	req := &relaymodel.VideoStopRequest{}
	if err := common.UnmarshalBodyReusable(c, req); err != nil {
		return relaymodel.NewValidationError(
			"Invalid request body: "+err.Error(), "", "invalid_request")
	}
	removed := 0
	for _, id := range req.TaskIds {
		if id == "" {
			continue
		}
		if _, found := videoSessions.Get(id); found {
			videoSessions.Delete(id)
			removed++
		}
	}
	c.JSON(http.StatusOK, relaymodel.VideoStopResponse{Status: "success", Removed: removed})
	return nil
}
