package stream

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

func useTempDataDir(t *testing.T) {
	t.Helper()
	orig := config.DataDir
	config.DataDir = t.TempDir()
	t.Cleanup(func() { config.DataDir = orig })
}

func wsFrame(id, stage, blob string, size int, final bool) grok.ImagineEvent {
	return grok.ImagineEvent{Image: &grok.ImagineImage{
		ImageID:  id,
		Stage:    stage,
		Blob:     "data:image/jpeg;base64," + blob,
		BlobSize: size,
		IsFinal:  final,
	}}
}

func wsEvents(events ...grok.ImagineEvent) <-chan grok.ImagineEvent {
	ch := make(chan grok.ImagineEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestBetterFrame(t *testing.T) {
	preview := &grok.ImagineImage{ImageID: "a", Stage: "preview", BlobSize: 10}
	medium := &grok.ImagineImage{ImageID: "a", Stage: "medium", BlobSize: 20}
	final := &grok.ImagineImage{ImageID: "a", Stage: "final", BlobSize: 5, IsFinal: true}

	assert.Same(t, preview, betterFrame(nil, preview))
	assert.Same(t, final, betterFrame(preview, final), "a final beats any non-final")
	assert.Same(t, final, betterFrame(final, medium), "a held final is never displaced")
	assert.Same(t, medium, betterFrame(preview, medium), "larger blobs win between non-finals")
	assert.Same(t, medium, betterFrame(medium, &grok.ImagineImage{BlobSize: 20}), "ties keep the first frame")
}

func TestImageWSStreamSingleImage(t *testing.T) {
	c, rec := newSSEContext(t)
	events := wsEvents(
		wsFrame("imgA", "preview", "QUFB", 3, false),
		wsFrame("imgB", "preview", "WFhY", 3, false),
		wsFrame("imgA", "medium", "QkJCQkI=", 5, false),
		wsFrame("imgA", "final", "Q0NDQ0NDQw==", 7, true),
	)

	completed := ImageWSStream(c, events, ImageOptions{
		Model:          "grok-imagine",
		N:              1,
		ResponseFormat: relaymodel.ImageFormatB64JSON,
		Size:           "1024x1024",
	})
	assert.True(t, completed)

	payloads := ssePayloads(t, rec.Body.String())
	require.Len(t, payloads, 3)

	var first, second, final map[string]any
	require.NoError(t, json.Unmarshal([]byte(payloads[0].Data), &first))
	require.NoError(t, json.Unmarshal([]byte(payloads[1].Data), &second))
	require.NoError(t, json.Unmarshal([]byte(payloads[2].Data), &final))

	// Only the first-seen image id streams; imgB stays silent.
	assert.Equal(t, eventImagePartial, payloads[0].Event)
	assert.Equal(t, "QUFB", first["b64_json"])
	assert.Equal(t, float64(0), first["index"])
	assert.Equal(t, float64(0), first["partial_image_index"])
	assert.Equal(t, "1024x1024", first["size"])

	assert.Equal(t, "QkJCQkI=", second["b64_json"])
	assert.Equal(t, float64(1), second["partial_image_index"], "medium stage bumps the partial counter")

	assert.Equal(t, eventImageCompleted, payloads[2].Event)
	assert.Equal(t, "Q0NDQ0NDQw==", final["b64_json"], "completed event carries the final frame")
	assert.Equal(t, float64(0), final["index"])
	assert.Contains(t, final, "usage")
}

func TestImageWSStreamTwoImages(t *testing.T) {
	c, rec := newSSEContext(t)
	events := wsEvents(
		wsFrame("imgA", "preview", "QUFB", 3, false),
		wsFrame("imgB", "preview", "WFhY", 3, false),
		wsFrame("imgC", "preview", "Wlpa", 3, false),
		wsFrame("imgA", "final", "QQ==", 1, true),
		wsFrame("imgB", "final", "Qg==", 1, true),
	)

	completed := ImageWSStream(c, events, ImageOptions{
		Model:          "grok-imagine",
		N:              2,
		ResponseFormat: relaymodel.ImageFormatB64JSON,
	})
	assert.True(t, completed)

	partials, finals := decodeImageEvents(t, rec.Body.String())

	// imgC arrives after both slots are taken and is never indexed.
	require.Len(t, partials, 2)
	assert.Equal(t, float64(0), partials[0]["index"])
	assert.Equal(t, float64(1), partials[1]["index"])

	require.Len(t, finals, 2)
	assert.Equal(t, "QQ==", finals[0]["b64_json"])
	assert.Equal(t, float64(0), finals[0]["index"])
	assert.Equal(t, "Qg==", finals[1]["b64_json"])
	assert.Equal(t, float64(1), finals[1]["index"])
}

func TestImageWSStreamErrorEvent(t *testing.T) {
	c, rec := newSSEContext(t)
	events := wsEvents(
		wsFrame("imgA", "preview", "QUFB", 3, false),
		grok.ImagineEvent{Err: &grok.ImagineError{Code: "content_moderation", Status: http.StatusForbidden, Message: "blocked"}},
	)

	completed := ImageWSStream(c, events, ImageOptions{
		Model: "grok-imagine",
		N:     1,
	})
	assert.False(t, completed, "a moderation abort must not bill the token")

	payloads := ssePayloads(t, rec.Body.String())
	require.NotEmpty(t, payloads)
	last := payloads[len(payloads)-1]
	assert.Equal(t, "error", last.Event)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Data), &body))
	assert.Equal(t, "blocked", body["error"]["message"])
	assert.Equal(t, "server_error", body["error"]["type"])
	assert.Equal(t, "content_moderation", body["error"]["code"])
}

func TestImageWSStreamEmptyChannel(t *testing.T) {
	c, rec := newSSEContext(t)

	completed := ImageWSStream(c, wsEvents(), ImageOptions{Model: "grok-imagine", N: 1})
	assert.True(t, completed)
	assert.Empty(t, ssePayloads(t, rec.Body.String()))
}

func TestImageWSCollectRanksFinalsFirst(t *testing.T) {
	events := wsEvents(
		wsFrame("imgA", "preview", "cHJldmlldw==", 10, false),
		wsFrame("imgB", "final", "QmJiYmI=", 5, true),
		wsFrame("imgC", "final", "Q2NjY2NjY2Nj", 9, true),
		wsFrame("imgA", "final", "QWFh", 3, true),
	)

	images, errResp := ImageWSCollect(events, ImageOptions{
		Model:          "grok-imagine",
		N:              2,
		ResponseFormat: relaymodel.ImageFormatB64JSON,
	})
	require.Nil(t, errResp)
	assert.Equal(t, []string{"Q2NjY2NjY2Nj", "QmJiYmI="}, images,
		"largest finals first, capped at n")
}

func TestImageWSCollectError(t *testing.T) {
	events := wsEvents(
		grok.ImagineEvent{Err: &grok.ImagineError{Code: "rate_limited", Status: http.StatusTooManyRequests, Message: "slow down"}},
	)

	images, errResp := ImageWSCollect(events, ImageOptions{Model: "grok-imagine", N: 1})
	assert.Nil(t, images)
	require.NotNil(t, errResp)
	assert.Equal(t, http.StatusTooManyRequests, errResp.StatusCode)
	assert.Equal(t, "rate_limited", errResp.Error.Code)
	assert.Equal(t, "slow down", errResp.Error.Message)
}

func TestImageWSCollectURLFormatPublishesBlob(t *testing.T) {
	useTempDataDir(t)
	origApp := config.AppURL
	config.AppURL = ""
	t.Cleanup(func() { config.AppURL = origApp })

	// base64 of "hello"
	events := wsEvents(wsFrame("imgA", "final", "aGVsbG8=", 5, true))

	images, errResp := ImageWSCollect(events, ImageOptions{
		Model:          "grok-imagine",
		N:              1,
		ResponseFormat: relaymodel.ImageFormatURL,
	})
	require.Nil(t, errResp)
	require.Equal(t, []string{"/v1/files/image/imgA.jpg"}, images)

	local := filecache.Lookup(filecache.MediaImage, "imgA.jpg")
	require.NotEmpty(t, local)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSaveWSBlob(t *testing.T) {
	useTempDataDir(t)

	origApp := config.AppURL
	config.AppURL = "http://gateway.local"
	t.Cleanup(func() { config.AppURL = origApp })

	url := saveWSBlob("shot1", "data:image/png;base64,aGVsbG8=", false)
	assert.Equal(t, "http://gateway.local/v1/files/image/shot1.png", url)

	assert.Empty(t, saveWSBlob("shot2", "data:image/png;base64,!!!", false),
		"undecodable blobs are dropped")
	assert.Empty(t, saveWSBlob("shot3", "", false))
}
