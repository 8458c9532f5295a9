package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v5"

	"github.com/fuchsia74/grok-api/common/config"
)

const chatEndpoint = GrokOrigin + "/rest/app-chat/conversations/new"

// ChatPayload is the request body of /rest/app-chat/conversations/new. The
// field set mirrors what the web client submits; zero values are meaningful
// so almost nothing is omitempty.
type ChatPayload struct {
	Temporary                 bool            `json:"temporary"`
	ModelName                 string          `json:"modelName"`
	Message                   string          `json:"message"`
	FileAttachments           []string        `json:"fileAttachments"`
	ImageAttachments          []string        `json:"imageAttachments"`
	DisableSearch             bool            `json:"disableSearch"`
	EnableImageGeneration     bool            `json:"enableImageGeneration"`
	ReturnImageBytes          bool            `json:"returnImageBytes"`
	ReturnRawGrokInXaiRequest bool            `json:"returnRawGrokInXaiRequest"`
	EnableImageStreaming      bool            `json:"enableImageStreaming"`
	ImageGenerationCount      int             `json:"imageGenerationCount"`
	ForceConcise              bool            `json:"forceConcise"`
	ToolOverrides             map[string]bool `json:"toolOverrides"`
	EnableSideBySide          bool            `json:"enableSideBySide"`
	SendFinalMetadata         bool            `json:"sendFinalMetadata"`
	IsReasoning               bool            `json:"isReasoning"`
	WebpageURLs               []string        `json:"webpageUrls"`
	DisableTextFollowUps      bool            `json:"disableTextFollowUps"`
	ResponseMetadata          map[string]any  `json:"responseMetadata,omitempty"`
	DisableMemory             bool            `json:"disableMemory"`
	ForceSideBySide           bool            `json:"forceSideBySide"`
	ModelMode                 string          `json:"modelMode,omitempty"`
	IsAsyncChat               bool            `json:"isAsyncChat"`
	DeviceEnvInfo             map[string]any  `json:"deviceEnvInfo,omitempty"`
}

// NewChatPayload assembles the standard chat request the web client sends,
// addressed to the given upstream model and mode.
func NewChatPayload(message, upstreamModel, modelMode string, fileAttachments []string) *ChatPayload {
	if fileAttachments == nil {
		fileAttachments = []string{}
	}
	return &ChatPayload{
		Temporary:             config.ChatTemporary,
		ModelName:             upstreamModel,
		Message:               message,
		FileAttachments:       fileAttachments,
		ImageAttachments:      []string{},
		EnableImageGeneration: true,
		EnableImageStreaming:  true,
		ImageGenerationCount:  2,
		ToolOverrides:         map[string]bool{},
		EnableSideBySide:      true,
		SendFinalMetadata:     true,
		WebpageURLs:           []string{},
		DisableTextFollowUps:  true,
		ResponseMetadata: map[string]any{
			"requestModelDetails": map[string]any{"modelId": upstreamModel},
		},
		DisableMemory: config.ChatDisableMemory,
		ModelMode:     modelMode,
	}
}

// VideoGenConfig is the per-request video model override carried inside
// responseMetadata.modelConfigOverride.
type VideoGenConfig struct {
	AspectRatio    string `json:"aspectRatio"`
	ParentPostID   string `json:"parentPostId,omitempty"`
	ResolutionName string `json:"resolutionName"`
	VideoLength    int    `json:"videoLength"`
}

// NewVideoChatPayload assembles a video generation request. The message
// carries the prompt plus a --mode flag; the video model configuration rides
// in responseMetadata and the toolOverrides enable videoGen.
func NewVideoChatPayload(message string, cfg VideoGenConfig) *ChatPayload {
	return &ChatPayload{
		Temporary:        true,
		ModelName:        "grok-3",
		Message:          message,
		FileAttachments:  []string{},
		ImageAttachments: []string{},
		ToolOverrides:    map[string]bool{"videoGen": true},
		EnableSideBySide: true,
		WebpageURLs:      []string{},
		DeviceEnvInfo: map[string]any{
			"darkModeEnabled":  false,
			"devicePixelRatio": 2,
			"screenWidth":      1920,
			"screenHeight":     1080,
			"viewportWidth":    1920,
			"viewportHeight":   1080,
		},
		ResponseMetadata: map[string]any{
			"modelConfigOverride": map[string]any{
				"modelMap": map[string]any{
					"videoGenModelConfig": cfg,
				},
			},
		},
	}
}

// StartChat opens a streaming conversation and returns the live response.
// The caller owns resp.Body and must close it; non-200 responses are drained
// here and returned as *UpstreamError. The referer can be overridden for the
// imagine flow which navigates from a post page.
func StartChat(ctx context.Context, token string, payload *ChatPayload, opts ...HeaderOption) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat payload")
	}

	req, err := gutils.NewReusableRequest(ctx, http.MethodPost, chatEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new chat request")
	}
	req.Header = BuildHeaders(token, opts...)

	resp, err := streamClient().Do(req)
	observe(chatEndpoint, resp)
	if err != nil {
		return nil, errors.Wrap(err, "post chat request")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, NewUpstreamErrorFromResponse(chatEndpoint, resp, respBody)
	}
	return resp, nil
}

// ImagineReferer builds the referer used when a video generation follows a
// freshly created media post.
func ImagineReferer(postID string) HeaderOption {
	return WithReferer(fmt.Sprintf("%s/imagine/%s", GrokOrigin, postID))
}
