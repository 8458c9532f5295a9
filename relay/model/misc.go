package model

import (
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
)

// FlexBool is a bool that additionally accepts the string spellings some
// OpenAI SDK ports send for boolean flags ("true"/"1"/"yes" and their
// negations).
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true":
		*b = true
		return nil
	case "false", "null":
		*b = false
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("must be a boolean")
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		*b = true
	case "false", "0", "no":
		*b = false
	default:
		return errors.New("must be a boolean")
	}
	return nil
}

func (b FlexBool) Bool() bool {
	return bool(b)
}

// Usage is the token usage information returned on chat completions.
// Values are estimates computed locally; the upstream consumer API does not
// report token counts.
type Usage struct {
	// Omitting zero values via 'omitempty' matters here: usage is attached
	// to the final stream chunk only when estimation succeeded.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
	// CompletionTokensDetails may be empty for non-thinking models
	CompletionTokensDetails *UsageCompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// UsageCompletionTokensDetails carries the thinking-block share of the
// completion estimate.
type UsageCompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
	// TextTokens could be zero for pure reasoning output
	TextTokens int `json:"text_tokens"`
}

// ImageUsage is the usage block of image generation responses. The upstream
// reports no counts for image work, so every field is zero; the shape is
// kept for OpenAI client compatibility.
type ImageUsage struct {
	TotalTokens        int                     `json:"total_tokens"`
	InputTokens        int                     `json:"input_tokens"`
	OutputTokens       int                     `json:"output_tokens"`
	InputTokensDetails ImageUsageTokensDetails `json:"input_tokens_details"`
}

type ImageUsageTokensDetails struct {
	TextTokens  int `json:"text_tokens"`
	ImageTokens int `json:"image_tokens"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code"`
	// RawError preserves the original upstream or internal error for diagnostics.
	// Omitted from JSON to avoid leaking upstream internals.
	RawError error `json:"-"`
}

type ErrorWithStatusCode struct {
	Error
	StatusCode int `json:"status_code"`
}
