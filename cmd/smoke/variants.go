package main

import (
	"net/http"
	"time"
)

// checkKind groups variants by what they need: gateway checks run once,
// generation checks run per configured model of that family.
type checkKind string

const (
	kindGateway checkKind = "gateway"
	kindChat    checkKind = "chat"
	kindImage   checkKind = "image"
	kindVideo   checkKind = "video"
)

// gatewayTarget labels results of model-independent checks in the matrix.
const gatewayTarget = "gateway"

const (
	maxResponseBodySize = 1 << 20
	maxLoggedBodyBytes  = 2048
)

type checkVariant struct {
	Key    string
	Header string
	Kind   checkKind
	Method string
	Path   string
	Stream bool
}

var checkVariants = []checkVariant{
	{Key: "health", Header: "Health", Kind: kindGateway, Method: http.MethodGet, Path: "/health"},
	{Key: "models_list", Header: "Models", Kind: kindGateway, Method: http.MethodGet, Path: "/v1/models"},
	{Key: "chat_stream_false", Header: "Chat (stream=false)", Kind: kindChat, Method: http.MethodPost, Path: "/v1/chat/completions"},
	{Key: "chat_stream_true", Header: "Chat (stream=true)", Kind: kindChat, Method: http.MethodPost, Path: "/v1/chat/completions", Stream: true},
	{Key: "image_generation", Header: "Image", Kind: kindImage, Method: http.MethodPost, Path: "/v1/images/generations"},
	{Key: "video_generation", Header: "Video", Kind: kindVideo, Method: http.MethodPost, Path: "/v1/video/generations"},
}

// checkSpec is one concrete request: a variant bound to a target model.
type checkSpec struct {
	Variant string
	Label   string
	Kind    checkKind
	Method  string
	Path    string
	Body    any
	Stream  bool
	Target  string
	// ExpectModels lists ids the model catalog must serve; only set on the
	// models_list check.
	ExpectModels []string
}

type checkResult struct {
	Target       string
	Variant      string
	Label        string
	Success      bool
	StatusCode   int
	Duration     time.Duration
	ErrorReason  string
	ResponseBody string
}

func chatPayload(model string, stream bool) any {
	return map[string]any{
		"model": model,
		"messages": []map[string]any{
			{"role": "user", "content": "Reply with the single word pong."},
		},
		"stream": stream,
	}
}

func imagePayload(model string) any {
	return map[string]any{
		"model":  model,
		"prompt": "a lighthouse on a rocky shore at dawn, watercolor",
		"n":      1,
	}
}

// The video pipeline takes a chat-shaped body; the prompt rides in the
// messages and the response is a chat completion whose content carries the
// rendered asset.
func videoPayload(model string) any {
	return map[string]any{
		"model": model,
		"messages": []map[string]any{
			{"role": "user", "content": "waves rolling onto an empty beach at sunset"},
		},
	}
}
