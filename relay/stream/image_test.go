package stream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

func decodeImageEvents(t *testing.T, raw string) (partials, completed []map[string]any) {
	t.Helper()
	for _, p := range ssePayloads(t, raw) {
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(p.Data), &payload))
		switch p.Event {
		case eventImagePartial:
			partials = append(partials, payload)
		case eventImageCompleted:
			completed = append(completed, payload)
		default:
			t.Fatalf("unexpected event %q", p.Event)
		}
	}
	return partials, completed
}

func TestImageStreamSingleImage(t *testing.T) {
	c, rec := newSSEContext(t)
	resp := upstreamResponse(
		`{"result":{"response":{"streamingImageGenerationResponse":{"imageIndex":0,"progress":50}}}}`,
		`{"result":{"response":{"streamingImageGenerationResponse":{"imageIndex":1,"progress":50}}}}`,
		`{"result":{"response":{"modelResponse":{"generatedImageUrls":["https://assets.grok.com/users/u1/generated/img0/image.jpg","https://assets.grok.com/users/u1/generated/img1/image.jpg"]}}}}`,
	)

	completed, errResp := ImageStream(c, resp, ImageOptions{
		Model:          "grok-imagine",
		N:              1,
		ResponseFormat: relaymodel.ImageFormatURL,
	})
	require.Nil(t, errResp)
	assert.True(t, completed)

	partials, finals := decodeImageEvents(t, rec.Body.String())

	// The upstream renders two candidates; exactly one is sampled and both
	// its progress and its final land on client index 0.
	require.Len(t, partials, 1)
	assert.Equal(t, eventImagePartial, partials[0]["type"])
	assert.Equal(t, float64(0), partials[0]["index"])
	assert.Equal(t, float64(50), partials[0]["progress"])
	assert.Equal(t, "", partials[0]["url"])

	require.Len(t, finals, 1)
	assert.Equal(t, eventImageCompleted, finals[0]["type"])
	assert.Equal(t, float64(0), finals[0]["index"])
	assert.Contains(t, []any{
		"https://assets.grok.com/users/u1/generated/img0/image.jpg",
		"https://assets.grok.com/users/u1/generated/img1/image.jpg",
	}, finals[0]["url"])
	assert.Contains(t, finals[0], "usage")
}

func TestImageStreamTwoImages(t *testing.T) {
	c, rec := newSSEContext(t)
	resp := upstreamResponse(
		`{"result":{"response":{"streamingImageGenerationResponse":{"imageIndex":0,"progress":30}}}}`,
		`{"result":{"response":{"streamingImageGenerationResponse":{"imageIndex":1,"progress":60}}}}`,
		`{"result":{"response":{"modelResponse":{"generatedImageUrls":["https://assets.grok.com/users/u1/generated/img0/image.jpg","https://assets.grok.com/users/u1/generated/img1/image.jpg"]}}}}`,
	)

	streamed, errResp := ImageStream(c, resp, ImageOptions{
		Model:          "grok-imagine",
		N:              2,
		ResponseFormat: relaymodel.ImageFormatURL,
	})
	require.Nil(t, errResp)
	assert.True(t, streamed)

	partials, finals := decodeImageEvents(t, rec.Body.String())

	require.Len(t, partials, 2)
	assert.Equal(t, float64(0), partials[0]["index"])
	assert.Equal(t, float64(30), partials[0]["progress"])
	assert.Equal(t, float64(1), partials[1]["index"])
	assert.Equal(t, float64(60), partials[1]["progress"])

	require.Len(t, finals, 2)
	assert.Equal(t, float64(0), finals[0]["index"])
	assert.Equal(t, "https://assets.grok.com/users/u1/generated/img0/image.jpg", finals[0]["url"])
	assert.Equal(t, float64(1), finals[1]["index"])
	assert.Equal(t, "https://assets.grok.com/users/u1/generated/img1/image.jpg", finals[1]["url"])
}

func TestImageCollect(t *testing.T) {
	resp := upstreamResponse(
		"garbage line",
		`{"result":{"response":{"streamingImageGenerationResponse":{"imageIndex":0,"progress":90}}}}`,
		`{"result":{"response":{"modelResponse":{"generatedImageUrls":["https://assets.grok.com/users/u1/generated/one/image.jpg","https://assets.grok.com/users/u1/generated/two/image.jpg"]}}}}`,
	)

	images := ImageCollect(context.Background(), resp, ImageOptions{
		Model:          "grok-imagine",
		N:              2,
		ResponseFormat: relaymodel.ImageFormatURL,
	})

	assert.Equal(t, []string{
		"https://assets.grok.com/users/u1/generated/one/image.jpg",
		"https://assets.grok.com/users/u1/generated/two/image.jpg",
	}, images)
}

func TestImageCollectEmptyStream(t *testing.T) {
	images := ImageCollect(context.Background(), upstreamResponse(), ImageOptions{Model: "grok-imagine", N: 1})
	assert.Empty(t, images)
}
