package controller

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok-api/common/config"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// pngUpload is the smallest byte run http.DetectContentType sniffs as
// image/png.
var pngUpload = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func urlFormat(t *testing.T) {
	t.Helper()
	orig := config.ImageFormat
	config.ImageFormat = "url"
	t.Cleanup(func() { config.ImageFormat = orig })
}

func decodeImageResponse(t *testing.T, rec *httptest.ResponseRecorder) relaymodel.ImageResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var out relaymodel.ImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestImageAspectRatio(t *testing.T) {
	assert.Equal(t, "16:9", imageAspectRatio("1280x720"))
	assert.Equal(t, "1:1", imageAspectRatio("1:1"))
	assert.Equal(t, "2:3", imageAspectRatio(""))
	assert.Equal(t, "2:3", imageAspectRatio("512x512"))
}

func TestRelayImageGenerationsFanOut(t *testing.T) {
	httpImages(t)
	passthroughAssets(t)
	urlFormat(t)
	mgr := seedPool(t, basicToken("tok-img-fan", 80))

	var calls atomic.Int32
	stubStreamClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != chatPath {
			return unexpectedRequest(t, req), nil
		}
		i := calls.Add(1)
		payload := decodeBody(t, req)
		assert.Equal(t, "Image Generation: a red panda", payload["message"])
		assert.Equal(t, "imagine", payload["modelName"])
		return upstreamResponse(chatFinalLine("",
			fmt.Sprintf("users/u1/generated/g%da/image.jpg", i),
			fmt.Sprintf("users/u1/generated/g%db/image.jpg", i),
		)), nil
	})

	c, rec := jsonContext(t, "/v1/images/generations",
		`{"model":"grok-imagine-1.0","prompt":"a red panda","n":3}`)
	errResp := RelayImageHelper(c)
	require.Nil(t, errResp)
	assert.Equal(t, int32(2), calls.Load(), "two upstream calls cover n=3 at two images each")

	out := decodeImageResponse(t, rec)
	require.Len(t, out.Data, 3)
	for _, item := range out.Data {
		assert.True(t, strings.HasPrefix(item.Url, "https://assets.grok.com/users/u1/generated/"),
			"unexpected image url %q", item.Url)
	}

	row := mgr.Lookup("tok-img-fan")
	require.NotNil(t, row)
	assert.Equal(t, 78, row.Quota, "each upstream call is billed once")
	assert.Equal(t, 2, row.UseCount)
}

func TestRelayImageGenerationsPadsUnderDelivery(t *testing.T) {
	httpImages(t)
	passthroughAssets(t)
	urlFormat(t)
	seedPool(t, basicToken("tok-img-pad", 80))

	var calls atomic.Int32
	stubStreamClient(t, func(req *http.Request) (*http.Response, error) {
		i := calls.Add(1)
		return upstreamResponse(chatFinalLine("",
			fmt.Sprintf("users/u1/generated/solo%d/image.jpg", i),
		)), nil
	})

	c, rec := jsonContext(t, "/v1/images/generations",
		`{"prompt":"a red panda","n":4}`)
	errResp := RelayImageHelper(c)
	require.Nil(t, errResp)

	out := decodeImageResponse(t, rec)
	require.Len(t, out.Data, 4)
	assert.True(t, strings.HasPrefix(out.Data[0].Url, "https://assets.grok.com/"))
	assert.True(t, strings.HasPrefix(out.Data[1].Url, "https://assets.grok.com/"))
	assert.Equal(t, "error", out.Data[2].Url)
	assert.Equal(t, "error", out.Data[3].Url)
}

func TestRelayImageStream(t *testing.T) {
	httpImages(t)
	passthroughAssets(t)
	urlFormat(t)
	mgr := seedPool(t, basicToken("tok-img-stream", 80))

	stubStreamClient(t, func(req *http.Request) (*http.Response, error) {
		payload := decodeBody(t, req)
		assert.Equal(t, "Image Generation: a lighthouse", payload["message"])
		return upstreamResponse(
			imageProgressLine(0, 40),
			imageProgressLine(1, 40),
			imageProgressLine(0, 90),
			imageProgressLine(1, 90),
			chatFinalLine("",
				"users/u1/generated/s0/image.jpg",
				"users/u1/generated/s1/image.jpg",
			),
		), nil
	})

	c, rec := jsonContext(t, "/v1/images/generations",
		`{"prompt":"a lighthouse","n":1,"stream":true}`)
	errResp := RelayImageHelper(c)
	require.Nil(t, errResp)

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	var partials, completed []map[string]any
	for _, p := range ssePayloads(t, rec.Body.String()) {
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(p.Data), &payload))
		switch p.Event {
		case "image_generation.partial_image":
			partials = append(partials, payload)
		case "image_generation.completed":
			completed = append(completed, payload)
		default:
			t.Fatalf("unexpected event %q", p.Event)
		}
	}
	require.NotEmpty(t, partials, "progress must surface before completion")
	require.Len(t, completed, 1)
	assert.Equal(t, float64(0), completed[0]["index"])
	url, _ := completed[0]["url"].(string)
	assert.True(t, strings.HasPrefix(url, "https://assets.grok.com/"))

	row := mgr.Lookup("tok-img-stream")
	require.NotNil(t, row)
	assert.Equal(t, 79, row.Quota)
	assert.Equal(t, 1, row.UseCount)
}

func TestRelayImageNoTokens(t *testing.T) {
	httpImages(t)

	c, _ := jsonContext(t, "/v1/images/generations", `{"prompt":"a red panda"}`)
	errResp := RelayImageHelper(c)
	require.NotNil(t, errResp)
	assert.Equal(t, http.StatusTooManyRequests, errResp.StatusCode)
	assert.Equal(t, "No available tokens. Please try again later.", errResp.Error.Message)
}

func TestRelayImageValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code string
	}{
		{"chat model", `{"model":"grok-4-fast","prompt":"a cat"}`, "model_not_supported"},
		{"empty prompt", `{"prompt":"  "}`, "empty_prompt"},
		{"n zero", `{"prompt":"a cat","n":0}`, "invalid_n"},
		{"stream n three", `{"prompt":"a cat","n":3,"stream":true}`, "invalid_stream_n"},
		{"bad format", `{"prompt":"a cat","response_format":"png"}`, "invalid_response_format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := jsonContext(t, "/v1/images/generations", tc.body)
			errResp := RelayImageHelper(c)
			require.NotNil(t, errResp)
			assert.Equal(t, tc.code, errResp.Error.Code)
		})
	}
}

type editFile struct {
	name string
	data []byte
}

func editContext(t *testing.T, fields map[string]string, files []editFile) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile("image", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return testContext(t, http.MethodPost, "/v1/images/edits", w.FormDataContentType(), &buf)
}

func TestRelayImageEditsValidation(t *testing.T) {
	manyFiles := make([]editFile, maxEditImages+1)
	for i := range manyFiles {
		manyFiles[i] = editFile{name: fmt.Sprintf("f%d.png", i), data: pngUpload}
	}

	cases := []struct {
		name  string
		files []editFile
		code  string
	}{
		{"missing image", nil, "missing_image"},
		{"too many images", manyFiles, "invalid_image_count"},
		{"empty file", []editFile{{name: "empty.png", data: nil}}, "empty_file"},
		{"unsupported type", []editFile{{name: "note.txt", data: []byte("plain text, not an image")}}, "invalid_image_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := editContext(t, map[string]string{"prompt": "make it blue"}, tc.files)
			errResp := RelayImageEditHelper(c)
			require.NotNil(t, errResp)
			assert.Equal(t, tc.code, errResp.Error.Code)
			assert.Equal(t, "image", errResp.Error.Param)
		})
	}
}

func TestRelayImageEditsFlow(t *testing.T) {
	httpImages(t)
	passthroughAssets(t)
	urlFormat(t)
	mgr := seedPool(t, basicToken("tok-img-edit", 80))

	wantContent := base64.StdEncoding.EncodeToString(pngUpload)

	stubImpatientClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/rest/app-chat/upload-file" {
			return unexpectedRequest(t, req), nil
		}
		assert.Equal(t, "tok-img-edit", cookieToken(req))
		payload := decodeBody(t, req)
		assert.Equal(t, "image/png", payload["fileMimeType"])
		assert.Equal(t, wantContent, payload["content"])
		return jsonResponse(http.StatusOK,
			`{"fileMetadataId":"fm-edit","fileUri":"users/u1/edit.png"}`), nil
	})
	stubStreamClient(t, func(req *http.Request) (*http.Response, error) {
		payload := decodeBody(t, req)
		assert.Equal(t, "Image Edit: make it blue", payload["message"])
		assert.Equal(t, []any{"fm-edit"}, payload["fileAttachments"])
		return upstreamResponse(chatFinalLine("",
			"users/u1/generated/e0/image.jpg",
			"users/u1/generated/e1/image.jpg",
		)), nil
	})

	c, rec := editContext(t,
		map[string]string{"prompt": "make it blue"},
		[]editFile{{name: "photo.png", data: pngUpload}})
	errResp := RelayImageEditHelper(c)
	require.Nil(t, errResp)

	out := decodeImageResponse(t, rec)
	require.Len(t, out.Data, 1)
	assert.True(t, strings.HasPrefix(out.Data[0].Url, "https://assets.grok.com/"))

	row := mgr.Lookup("tok-img-edit")
	require.NotNil(t, row)
	assert.Equal(t, 79, row.Quota)
	assert.Equal(t, 1, row.UseCount)
}
