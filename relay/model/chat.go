package model

// Roles accepted on inbound chat messages.
const (
	RoleDeveloper = "developer"
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleDeveloper, RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ValidReasoningEffort reports whether value is an accepted reasoning
// effort level. The empty string is not valid; callers treat absence
// separately.
func ValidReasoningEffort(value string) bool {
	switch value {
	case "none", "minimal", "low", "medium", "high", "xhigh":
		return true
	}
	return false
}

// VideoConfig tunes generation for video-capable models requested through
// the chat completions endpoint. AspectRatio accepts both ratio names and
// the pixel-dimension aliases; NormalizeVideoAspectRatio folds them.
type VideoConfig struct {
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	VideoLength    int    `json:"video_length,omitempty"`
	ResolutionName string `json:"resolution_name,omitempty"`
	Preset         string `json:"preset,omitempty"`
}

// ChatRequest is the accepted subset of the OpenAI chat completions body.
// Unknown fields are ignored. MaxTokens is accepted for client
// compatibility but has no upstream equivalent. Stream is a pointer so an
// absent field falls back to the server-side default instead of false.
type ChatRequest struct {
	Model           string       `json:"model"`
	Messages        []Message    `json:"messages"`
	Stream          *FlexBool    `json:"stream,omitempty"`
	ReasoningEffort string       `json:"reasoning_effort,omitempty"`
	Temperature     *float64     `json:"temperature,omitempty"`
	TopP            *float64     `json:"top_p,omitempty"`
	MaxTokens       int          `json:"max_tokens,omitempty"`
	Thinking        *bool        `json:"thinking,omitempty"`
	VideoConfig     *VideoConfig `json:"video_config,omitempty"`
}

// ResponseMessage is the assistant message carried by non-streaming chat
// responses. Refusal and Annotations are emitted explicitly so the object
// matches what current OpenAI SDKs expect to find.
type ResponseMessage struct {
	Role        string  `json:"role"`
	Content     string  `json:"content"`
	Refusal     *string `json:"refusal"`
	Annotations []any   `json:"annotations"`
}

// NewAssistantMessage returns a response message with the empty refusal
// and annotations fields populated.
func NewAssistantMessage(content string) ResponseMessage {
	return ResponseMessage{
		Role:        RoleAssistant,
		Content:     content,
		Annotations: []any{},
	}
}

type TextResponseChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// TextResponse is the OpenAI chat.completion envelope.
type TextResponse struct {
	Id                string               `json:"id"`
	Object            string               `json:"object"`
	Created           int64                `json:"created"`
	Model             string               `json:"model"`
	SystemFingerprint string               `json:"system_fingerprint"`
	Choices           []TextResponseChoice `json:"choices"`
	Usage             Usage                `json:"usage"`
}

type ChatCompletionsStreamResponseChoice struct {
	Index int `json:"index"`
	// Delta reuses Message; with all fields optional the finish chunk
	// serializes as an empty object.
	Delta        Message `json:"delta"`
	Logprobs     any     `json:"logprobs"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionsStreamResponse is one chat.completion.chunk SSE payload.
// SystemFingerprint stays an empty string until the upstream reports a
// model hash.
type ChatCompletionsStreamResponse struct {
	Id                string                                `json:"id"`
	Object            string                                `json:"object"`
	Created           int64                                 `json:"created"`
	Model             string                                `json:"model"`
	SystemFingerprint string                                `json:"system_fingerprint"`
	Choices           []ChatCompletionsStreamResponseChoice `json:"choices"`
}
