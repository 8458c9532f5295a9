package controller

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/image"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
	"github.com/fuchsia74/grok-api/relay/retry"
	"github.com/fuchsia74/grok-api/relay/routing"
	"github.com/fuchsia74/grok-api/relay/stream"
)

const (
	maxEditImages    = 16
	maxEditImageSize = 50 * 1024 * 1024
)

// imageAspectRatio maps the OpenAI size parameter onto an upstream aspect
// ratio. Sizes outside the alias table fall back to the portrait ratio the
// upstream web client generates with.
func imageAspectRatio(size string) string {
	if ratio, ok := relaymodel.NormalizeVideoAspectRatio(size); ok {
		return ratio
	}
	return "2:3"
}

// RelayImageHelper serves POST /v1/images/generations. Image work runs under
// a single token: generations burn quota fast enough that falling over would
// drain the whole pool on one bad prompt. With the imagine socket enabled
// the request rides the WebSocket; otherwise it goes through the chat
// endpoint with an "Image Generation:" prompt.
func RelayImageHelper(c *gin.Context) *relaymodel.ErrorWithStatusCode {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	req := &relaymodel.ImageRequest{}
	if err := common.UnmarshalBodyReusable(c, req); err != nil {
		return relaymodel.NewValidationError(
			"Invalid request body: "+err.Error(), "", "invalid_request")
	}
	n, errResp := validateImageRequest(req)
	if errResp != nil {
		return errResp
	}
	format, errResp := resolveImageFormat(req.ResponseFormat)
	if errResp != nil {
		return errResp
	}

	mgr := pool.Default()
	if err := mgr.ReloadIfStale(ctx); err != nil {
		lg.Warn("reload token pool", zap.Error(err))
	}
	info := mgr.GetFromCandidates(routing.PoolCandidatesForModel(req.Model), nil)
	if info == nil {
		return relaymodel.NewRateLimitError(noTokenMessage)
	}
	token := info.Token

	desc, _ := routing.Lookup(req.Model)
	opts := stream.ImageOptions{
		Model:          req.Model,
		Token:          token,
		N:              n,
		ResponseFormat: format,
		Size:           req.Size,
	}

	if req.Stream.Bool() {
		if config.ImageWSEnabled {
			events := grok.StreamImagine(ctx, token, grok.ImagineRequest{
				Prompt:      req.Prompt,
				AspectRatio: imageAspectRatio(req.Size),
				N:           n,
				EnableNSFW:  config.ImageWSNsfw,
			})
			if stream.ImageWSStream(c, events, opts) {
				consumeOnSuccess(c, mgr, token, req.Model)
			}
			return nil
		}
		resp, err := startImageChat(c, mgr, token, "Image Generation: "+req.Prompt, desc, nil)
		if err != nil {
			return upstreamErrorResponse(err)
		}
		completed, errResp := stream.ImageStream(c, resp, opts)
		if completed {
			consumeOnSuccess(c, mgr, token, req.Model)
		}
		return errResp
	}

	var images []string
	if config.ImageWSEnabled {
		events := grok.StreamImagine(ctx, token, grok.ImagineRequest{
			Prompt:      req.Prompt,
			AspectRatio: imageAspectRatio(req.Size),
			N:           n,
			EnableNSFW:  config.ImageWSNsfw,
		})
		collected, errResp := stream.ImageWSCollect(events, opts)
		if errResp != nil {
			return errResp
		}
		consumeOnSuccess(c, mgr, token, req.Model)
		images = collected
	} else {
		images = fanOutImageCalls(c, mgr, token, "Image Generation: "+req.Prompt, desc, nil, n, opts)
	}

	c.JSON(http.StatusOK, buildImageResponse(images, n, format))
	return nil
}

// RelayImageEditHelper serves POST /v1/images/edits. Edits always take the
// chat path since the imagine socket cannot carry attachments. Uploaded
// files are validated by content, re-encoded as data URIs and pushed to the
// upstream under the picked token before the edit prompt is sent.
func RelayImageEditHelper(c *gin.Context) *relaymodel.ErrorWithStatusCode {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	req := &relaymodel.ImageEditRequest{}
	if err := c.ShouldBind(req); err != nil {
		return relaymodel.NewValidationError(
			"Invalid request body: "+err.Error(), "", "invalid_request")
	}
	genReq := &relaymodel.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              req.N,
		Size:           req.Size,
		Quality:        req.Quality,
		ResponseFormat: req.ResponseFormat,
		Style:          req.Style,
		Stream:         relaymodel.FlexBool(req.Stream),
	}
	n, errResp := validateImageRequest(genReq)
	if errResp != nil {
		return errResp
	}
	format, errResp := resolveImageFormat(req.ResponseFormat)
	if errResp != nil {
		return errResp
	}

	dataURIs, errResp := readEditUploads(c)
	if errResp != nil {
		return errResp
	}

	mgr := pool.Default()
	if err := mgr.ReloadIfStale(ctx); err != nil {
		lg.Warn("reload token pool", zap.Error(err))
	}
	info := mgr.GetFromCandidates(routing.PoolCandidatesForModel(genReq.Model), nil)
	if info == nil {
		return relaymodel.NewRateLimitError(noTokenMessage)
	}
	token := info.Token

	attachments := make([]attachment, 0, len(dataURIs))
	for _, uri := range dataURIs {
		attachments = append(attachments, attachment{kind: attachmentImage, data: uri})
	}
	fileIDs, err := uploadAttachments(ctx, token, attachments)
	if err != nil {
		lg.Warn("upload edit images",
			zap.String("token", helper.MaskToken(token)), zap.Error(err))
		return upstreamErrorResponse(err)
	}

	desc, _ := routing.Lookup(genReq.Model)
	prompt := "Image Edit: " + req.Prompt
	opts := stream.ImageOptions{
		Model:          genReq.Model,
		Token:          token,
		N:              n,
		ResponseFormat: format,
		Size:           req.Size,
	}

	if req.Stream {
		resp, err := startImageChat(c, mgr, token, prompt, desc, fileIDs)
		if err != nil {
			return upstreamErrorResponse(err)
		}
		completed, errResp := stream.ImageStream(c, resp, opts)
		if completed {
			consumeOnSuccess(c, mgr, token, genReq.Model)
		}
		return errResp
	}

	images := fanOutImageCalls(c, mgr, token, prompt, desc, fileIDs, n, opts)
	c.JSON(http.StatusOK, buildImageResponse(images, n, format))
	return nil
}

// readEditUploads pulls the multipart image files, validates them by
// content and returns them re-encoded as data URIs.
func readEditUploads(c *gin.Context) ([]string, *relaymodel.ErrorWithStatusCode) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, relaymodel.NewValidationError(
			"Invalid multipart form: "+err.Error(), "image", "invalid_request")
	}
	files := form.File["image"]
	if len(files) == 0 {
		files = form.File["image[]"]
	}
	if len(files) == 0 {
		return nil, relaymodel.NewValidationError(
			"Image is required", "image", "missing_image")
	}
	if len(files) > maxEditImages {
		return nil, relaymodel.NewValidationError(
			"Too many images. Maximum is 16.", "image", "invalid_image_count")
	}

	dataURIs := make([]string, 0, len(files))
	for _, fh := range files {
		content, err := readUpload(fh)
		if err != nil {
			return nil, relaymodel.NewValidationError(
				"Failed to read uploaded file: "+err.Error(), "image", "invalid_request")
		}
		if len(content) == 0 {
			return nil, relaymodel.NewValidationError(
				"File content is empty", "image", "empty_file")
		}
		if len(content) > maxEditImageSize {
			return nil, relaymodel.NewValidationError(
				"Image file too large. Maximum is 50MB.", "image", "file_too_large")
		}
		mime, err := image.SniffEditUploadMime(content)
		if err != nil {
			return nil, relaymodel.NewValidationError(
				"Unsupported image type. Supported: png, jpg, webp.", "image", "invalid_image_type")
		}
		dataURIs = append(dataURIs,
			"data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(content))
	}
	return dataURIs, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	return data, nil
}

// startImageChat opens an upstream generation chat and keeps pool accounting
// aligned with the outcome. Rate limits are retried in place rather than
// falling over; the picked token is the only one this request may spend.
func startImageChat(c *gin.Context, mgr *pool.Manager, token, message string, desc routing.Descriptor, fileIDs []string) (*http.Response, error) {
	payload := grok.NewChatPayload(message, desc.UpstreamModel, desc.Mode, fileIDs)
	var resp *http.Response
	err := retry.Do(gmw.Ctx(c), retry.DefaultConfig(), func(ctx context.Context) error {
		var callErr error
		resp, callErr = grok.StartChat(ctx, token, payload)
		return callErr
	})
	if err != nil {
		var ue *grok.UpstreamError
		if stderrors.As(err, &ue) {
			mgr.RecordFail(token, ue.Status, ue.Body)
		}
		gmw.GetLogger(c).Warn("start image chat",
			zap.String("token", helper.MaskToken(token)), zap.Error(err))
		return nil, err
	}
	mgr.RecordSuccess(token, false)
	return resp, nil
}

// fanOutImageCalls runs ceil(n/2) parallel generation chats, one per pair of
// images the upstream renders per call, and pools their results. A failed
// call contributes nothing; the survivors still count.
func fanOutImageCalls(c *gin.Context, mgr *pool.Manager, token, message string, desc routing.Descriptor, fileIDs []string, n int, opts stream.ImageOptions) []string {
	calls := (n + 1) / 2
	results := make([][]string, calls)
	var g errgroup.Group
	for i := 0; i < calls; i++ {
		g.Go(func() error {
			resp, err := startImageChat(c, mgr, token, message, desc, fileIDs)
			if err != nil {
				return nil
			}
			images := stream.ImageCollect(gmw.Ctx(c), resp, opts)
			consumeOnSuccess(c, mgr, token, opts.Model)
			results[i] = images
			return nil
		})
	}
	_ = g.Wait()

	var all []string
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// buildImageResponse samples n images from the collected union, padding with
// "error" entries when the upstream under-delivered.
func buildImageResponse(images []string, n int, format string) *relaymodel.ImageResponse {
	var selected []string
	if len(images) >= n {
		selected = make([]string, 0, n)
		for _, idx := range rand.Perm(len(images))[:n] {
			selected = append(selected, images[idx])
		}
	} else {
		selected = append(selected, images...)
		for len(selected) < n {
			selected = append(selected, "error")
		}
	}
	field := relaymodel.ImageResponseField(format)
	data := make([]relaymodel.ImageData, 0, len(selected))
	for _, img := range selected {
		data = append(data, relaymodel.NewImageData(field, img))
	}
	return &relaymodel.ImageResponse{
		Created: helper.GetTimestamp(),
		Data:    data,
	}
}
