package controller

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/fuchsia74/grok-api/common/config"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
	"github.com/fuchsia74/grok-api/relay/routing"
)

// defaultImageModel is assumed when an images request omits the model.
const defaultImageModel = "grok-imagine-1.0"

func validContentTypeForUser(blockType string) bool {
	switch blockType {
	case relaymodel.ContentTypeText, relaymodel.ContentTypeImageURL,
		relaymodel.ContentTypeInputAudio, relaymodel.ContentTypeFile:
		return true
	}
	return false
}

// validateChatRequest checks the request against the accepted chat surface.
// Checks run in field order so the first offending field is the one
// reported, matching what SDK retry loops key on.
func validateChatRequest(req *relaymodel.ChatRequest) *relaymodel.ErrorWithStatusCode {
	if !routing.IsKnown(req.Model) {
		return relaymodel.NewValidationError(
			fmt.Sprintf("The model `%s` does not exist or you do not have access to it.", req.Model),
			"model", "model_not_found")
	}
	for idx, msg := range req.Messages {
		if errResp := validateMessage(idx, &msg); errResp != nil {
			return errResp
		}
	}
	if req.ReasoningEffort != "" && !relaymodel.ValidReasoningEffort(req.ReasoningEffort) {
		return relaymodel.NewValidationError(
			"reasoning_effort must be one of none, minimal, low, medium, high, xhigh",
			"reasoning_effort", "invalid_reasoning_effort")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return relaymodel.NewValidationError(
			"temperature must be between 0 and 2", "temperature", "invalid_temperature")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return relaymodel.NewValidationError(
			"top_p must be between 0 and 1", "top_p", "invalid_top_p")
	}
	return nil
}

func validateMessage(idx int, msg *relaymodel.Message) *relaymodel.ErrorWithStatusCode {
	if !relaymodel.ValidRole(msg.Role) {
		return relaymodel.NewValidationError(
			"role must be one of developer, system, user, assistant",
			fmt.Sprintf("messages.%d.role", idx), "invalid_role")
	}
	contentParam := fmt.Sprintf("messages.%d.content", idx)
	switch content := msg.Content.(type) {
	case string:
		if strings.TrimSpace(content) == "" {
			return relaymodel.NewValidationError(
				"Message content cannot be empty", contentParam, "empty_content")
		}
	case []any:
		if len(content) == 0 {
			return relaymodel.NewValidationError(
				"Message content cannot be an empty array", contentParam, "empty_content")
		}
		for blockIdx, raw := range content {
			if errResp := validateContentBlock(msg.Role, contentParam, blockIdx, raw); errResp != nil {
				return errResp
			}
		}
	default:
		return relaymodel.NewValidationError(
			"Message content must be a string or array", contentParam, "invalid_content")
	}
	return nil
}

func validateContentBlock(role, contentParam string, blockIdx int, raw any) *relaymodel.ErrorWithStatusCode {
	blockParam := fmt.Sprintf("%s.%d", contentParam, blockIdx)
	block, ok := raw.(map[string]any)
	if !ok {
		return relaymodel.NewValidationError(
			"Content block must be an object", blockParam, "invalid_block")
	}
	if len(block) == 0 {
		return relaymodel.NewValidationError(
			"Content block cannot be empty", blockParam, "empty_block")
	}
	rawType, ok := block["type"]
	if !ok {
		return relaymodel.NewValidationError(
			"Content block must have a 'type' field", blockParam, "missing_type")
	}
	blockType, _ := rawType.(string)
	if strings.TrimSpace(blockType) == "" {
		return relaymodel.NewValidationError(
			"Content block 'type' cannot be empty", blockParam+".type", "empty_type")
	}
	if role == relaymodel.RoleUser {
		if !validContentTypeForUser(blockType) {
			return relaymodel.NewValidationError(
				fmt.Sprintf("Invalid content block type: '%s'", blockType),
				blockParam+".type", "invalid_type")
		}
	} else if blockType != relaymodel.ContentTypeText {
		return relaymodel.NewValidationError(
			fmt.Sprintf("The `%s` role only supports 'text' type, got '%s'", role, blockType),
			blockParam+".type", "invalid_type")
	}

	switch blockType {
	case relaymodel.ContentTypeText:
		text, _ := block["text"].(string)
		if strings.TrimSpace(text) == "" {
			return relaymodel.NewValidationError(
				"Text content cannot be empty", blockParam+".text", "empty_text")
		}
	case relaymodel.ContentTypeImageURL:
		obj, ok := block["image_url"].(map[string]any)
		if !ok || len(obj) == 0 {
			return relaymodel.NewValidationError(
				"image_url must have a 'url' field", blockParam+".image_url", "missing_url")
		}
		url, _ := obj["url"].(string)
		return validateMediaInput(url, "image_url.url", blockParam+".image_url.url")
	case relaymodel.ContentTypeInputAudio:
		obj, ok := block["input_audio"].(map[string]any)
		if !ok || len(obj) == 0 {
			return relaymodel.NewValidationError(
				"input_audio must have a 'data' field", blockParam+".input_audio", "missing_audio")
		}
		data, _ := obj["data"].(string)
		return validateMediaInput(data, "input_audio.data", blockParam+".input_audio.data")
	case relaymodel.ContentTypeFile:
		obj, ok := block["file"].(map[string]any)
		if !ok || len(obj) == 0 {
			return relaymodel.NewValidationError(
				"file must have a 'file_data' field", blockParam+".file", "missing_file")
		}
		data, _ := obj["file_data"].(string)
		return validateMediaInput(data, "file.file_data", blockParam+".file.file_data")
	}
	return nil
}

// validateMediaInput accepts http(s) URLs and data URIs. Bare base64 is
// recognized and rejected with a pointer at the data URI form, since
// forwarding it upstream unlabeled would fail much less legibly there.
func validateMediaInput(value, fieldName, param string) *relaymodel.ErrorWithStatusCode {
	value = strings.TrimSpace(value)
	if value == "" {
		return relaymodel.NewValidationError(
			fieldName+" cannot be empty", param, "empty_media")
	}
	if strings.HasPrefix(value, "data:") ||
		strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return nil
	}
	candidate := strings.Join(strings.Fields(value), "")
	if len(candidate) >= 32 && len(candidate)%4 == 0 {
		if _, err := base64.StdEncoding.DecodeString(candidate); err == nil {
			return relaymodel.NewValidationError(
				fieldName+" base64 must be provided as a data URI (data:<mime>;base64,...)",
				param, "invalid_media")
		}
	}
	return relaymodel.NewValidationError(
		fieldName+" must be a URL or data URI", param, "invalid_media")
}

// normalizeVideoConfig fills defaults and validates the video knobs of chat
// requests against video-capable models.
func normalizeVideoConfig(cfg *relaymodel.VideoConfig) (relaymodel.VideoConfig, *relaymodel.ErrorWithStatusCode) {
	out := relaymodel.VideoConfig{
		AspectRatio:    "3:2",
		VideoLength:    6,
		ResolutionName: "480p",
		Preset:         "custom",
	}
	if cfg != nil {
		if cfg.AspectRatio != "" {
			out.AspectRatio = cfg.AspectRatio
		}
		if cfg.VideoLength != 0 {
			out.VideoLength = cfg.VideoLength
		}
		if cfg.ResolutionName != "" {
			out.ResolutionName = cfg.ResolutionName
		}
		if cfg.Preset != "" {
			out.Preset = cfg.Preset
		}
	}
	ratio, ok := relaymodel.NormalizeVideoAspectRatio(out.AspectRatio)
	if !ok {
		return out, relaymodel.NewValidationError(
			"aspect_ratio must be one of ['16:9', '9:16', '3:2', '2:3', '1:1']",
			"video_config.aspect_ratio", "invalid_aspect_ratio")
	}
	out.AspectRatio = ratio
	if !relaymodel.ValidVideoLength(out.VideoLength) {
		return out, relaymodel.NewValidationError(
			"video_length must be 6, 10, or 15 seconds",
			"video_config.video_length", "invalid_video_length")
	}
	if !relaymodel.ValidVideoResolution(out.ResolutionName) {
		return out, relaymodel.NewValidationError(
			"resolution_name must be one of ['480p', '720p']",
			"video_config.resolution_name", "invalid_resolution")
	}
	if !relaymodel.ValidVideoPreset(out.Preset) {
		return out, relaymodel.NewValidationError(
			"preset must be one of ['fun', 'normal', 'spicy', 'custom']",
			"video_config.preset", "invalid_preset")
	}
	return out, nil
}

// validateImageRequest checks an images/generations body and resolves the
// effective image count.
func validateImageRequest(req *relaymodel.ImageRequest) (int, *relaymodel.ErrorWithStatusCode) {
	if req.Model == "" {
		req.Model = defaultImageModel
	}
	if !routing.IsImage(req.Model) {
		var supported []string
		for _, d := range routing.All() {
			if d.Kind == routing.KindImage {
				supported = append(supported, d.ID)
			}
		}
		return 0, relaymodel.NewValidationError(
			fmt.Sprintf("The model `%s` is not supported for image generation. Supported models: %s",
				req.Model, strings.Join(supported, ", ")),
			"model", "model_not_supported")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return 0, relaymodel.NewValidationError(
			"Prompt cannot be empty", "prompt", "empty_prompt")
	}
	n := 1
	if req.N != nil {
		n = *req.N
	}
	if n < 1 || n > 10 {
		return 0, relaymodel.NewValidationError(
			"n must be between 1 and 10", "n", "invalid_n")
	}
	if req.Stream.Bool() && n > 2 {
		return 0, relaymodel.NewValidationError(
			"Streaming is only supported when n=1 or n=2", "stream", "invalid_stream_n")
	}
	return n, nil
}

// resolveImageFormat folds the requested response_format onto the canonical
// set, falling back to the configured default when the field is absent.
func resolveImageFormat(requested string) (string, *relaymodel.ErrorWithStatusCode) {
	format := strings.ToLower(strings.TrimSpace(requested))
	if format == "" {
		format = strings.ToLower(strings.TrimSpace(config.ImageFormat))
	}
	if format == "" {
		format = relaymodel.ImageFormatURL
	}
	if !relaymodel.ValidImageResponseFormat(format) {
		return "", relaymodel.NewValidationError(
			"response_format must be one of b64_json, base64, url",
			"response_format", "invalid_response_format")
	}
	return format, nil
}
