package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateHealthCheck(t *testing.T) {
	spec := checkSpec{Variant: "health", Kind: kindGateway}

	ok, reason := evaluateCheck(spec, 200, []byte(`{"status":"ok"}`))
	assert.True(t, ok, reason)

	ok, reason = evaluateCheck(spec, 503, []byte(`{"status":"draining"}`))
	assert.False(t, ok)
	assert.Contains(t, reason, "status 503")
}

func TestEvaluateModelCatalog(t *testing.T) {
	spec := checkSpec{
		Variant:      "models_list",
		Kind:         kindGateway,
		ExpectModels: []string{"grok-4-fast", "grok-imagine-1.0"},
	}
	body := []byte(`{"object":"list","data":[{"id":"grok-4-fast","object":"model"},{"id":"grok-imagine-1.0","object":"model"}]}`)

	ok, reason := evaluateCheck(spec, 200, body)
	assert.True(t, ok, reason)

	spec.ExpectModels = append(spec.ExpectModels, "grok-4-heavy")
	ok, reason = evaluateCheck(spec, 200, body)
	assert.False(t, ok)
	assert.Contains(t, reason, "grok-4-heavy")

	ok, reason = evaluateCheck(spec, 200, []byte(`{"object":"list","data":[]}`))
	assert.False(t, ok)
	assert.Contains(t, reason, "no models")
}

func TestEvaluateCompletion(t *testing.T) {
	spec := checkSpec{Variant: "chat_stream_false", Kind: kindChat}

	body := []byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`)
	ok, reason := evaluateCheck(spec, 200, body)
	assert.True(t, ok, reason)

	empty := []byte(`{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":""}}]}`)
	ok, reason = evaluateCheck(spec, 200, empty)
	assert.False(t, ok)
	assert.Contains(t, reason, "content empty")

	upstream := []byte(`{"error":{"message":"no active credentials in pool basic","type":"gateway_error"}}`)
	ok, reason = evaluateCheck(spec, 200, upstream)
	assert.False(t, ok)
	assert.Contains(t, reason, "no active credentials")
}

func TestEvaluateImageResponse(t *testing.T) {
	spec := checkSpec{Variant: "image_generation", Kind: kindImage}

	ok, reason := evaluateCheck(spec, 200, []byte(`{"created":1700000000,"data":[{"url":"http://localhost:3000/v1/files/image/a.jpg"}]}`))
	assert.True(t, ok, reason)

	ok, reason = evaluateCheck(spec, 200, []byte(`{"created":1700000000,"data":[{"b64_json":"aGVsbG8="}]}`))
	assert.True(t, ok, reason)

	ok, reason = evaluateCheck(spec, 200, []byte(`{"created":1700000000,"data":[]}`))
	assert.False(t, ok)
	assert.Contains(t, reason, "missing image data")

	ok, reason = evaluateCheck(spec, 200, []byte(`{"created":1700000000,"data":[{"revised_prompt":"x"}]}`))
	assert.False(t, ok)
	assert.Contains(t, reason, "neither url nor payload")
}

func TestEvaluateStreamCheck(t *testing.T) {
	spec := checkSpec{Variant: "chat_stream_true", Kind: kindChat, Stream: true}

	stream := strings.Join([]string{
		`data: {"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`data: {"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"pong"}}]}`,
		"data: [DONE]",
		"",
	}, "\n")
	ok, reason := evaluateStreamCheck(spec, 200, []byte(stream))
	assert.True(t, ok, reason)

	failing := `data: {"error":{"message":"quota exhausted","type":"upstream_error"}}` + "\n"
	ok, reason = evaluateStreamCheck(spec, 200, []byte(failing))
	assert.False(t, ok)
	assert.Contains(t, reason, "quota exhausted")

	quiet := `data: {"choices":[{"index":0,"delta":{}}]}` + "\ndata: [DONE]\n"
	ok, reason = evaluateStreamCheck(spec, 200, []byte(quiet))
	assert.False(t, ok)
	assert.Contains(t, reason, "delta content")

	ok, reason = evaluateStreamCheck(spec, 200, []byte("  \n"))
	assert.False(t, ok)
	assert.Contains(t, reason, "empty stream")
}

func TestCollectStreamBodyStopsAtDone(t *testing.T) {
	input := "data: {\"choices\":[]}\ndata: [DONE]\ndata: {\"late\":true}\n"

	data, err := collectStreamBody(strings.NewReader(input), maxResponseBodySize)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DONE]")
	assert.NotContains(t, string(data), "late")
}

func TestCollectStreamBodyRejectsEmpty(t *testing.T) {
	_, err := collectStreamBody(strings.NewReader(""), maxResponseBodySize)
	require.Error(t, err)
}
