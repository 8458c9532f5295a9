package image_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	_ "golang.org/x/image/webp"

	"github.com/fuchsia74/grok-api/common/client"
	img "github.com/fuchsia74/grok-api/common/image"
)

// 1x1 transparent PNG
const b64PNG1x1 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mP8/x8AAusB9YwVf0sAAAAASUVORK5CYII="

// 1x1 GIF
const b64GIF1x1 = "R0lGODlhAQABAPAAAP///wAAACH5BAAAAAAALAAAAAABAAEAAAICRAEAOw=="

func TestMain(m *testing.M) {
	client.Init()
	m.Run()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(b64PNG1x1)
	require.NoError(t, err)
	return data
}

func TestGetImageSizeFromBase64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		b64    string
		width  int
		height int
	}{
		{name: "PNG_1x1", b64: b64PNG1x1, width: 1, height: 1},
		{name: "GIF_1x1", b64: b64GIF1x1, width: 1, height: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			width, height, err := img.GetImageSizeFromBase64(tt.b64)
			require.NoError(t, err)
			require.Equal(t, tt.width, width)
			require.Equal(t, tt.height, height)
		})
	}

	t.Run("WithDataURLPrefix", func(t *testing.T) {
		width, height, err := img.GetImageSizeFromBase64("data:image/png;base64," + b64PNG1x1)
		require.NoError(t, err)
		require.Equal(t, 1, width)
		require.Equal(t, 1, height)
	})

	t.Run("InvalidBase64", func(t *testing.T) {
		_, _, err := img.GetImageSizeFromBase64("this-is-not-base64!!!")
		require.Error(t, err)
	})
}

func TestGetImageFromUrlDataURL(t *testing.T) {
	t.Parallel()

	mimeType, data, err := img.GetImageFromUrl("data:image/png;base64," + b64PNG1x1)
	require.NoError(t, err)
	require.Equal(t, "image/png", mimeType)
	require.Equal(t, b64PNG1x1, data)
}

func TestGetImageFromUrlRemote(t *testing.T) {
	raw := pngBytes(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	mimeType, data, err := img.GetImageFromUrl(server.URL + "/one.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", mimeType)

	decoded, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestGetImageFromUrlRejectsNonImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer server.Close()

	_, _, err := img.GetImageFromUrl(server.URL + "/page.html")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid content type")
}

func TestIsImageUrlHeadFallback(t *testing.T) {
	raw := pngBytes(t)

	// Some hosts reject HEAD; the check falls back to GET.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	ok, err := img.IsImageUrl(server.URL + "/head-less.png")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsImageUrlRejectsOversized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", "99999999999")
	}))
	defer server.Close()

	_, err := img.IsImageUrl(server.URL + "/huge.png")
	require.Error(t, err)
	require.Contains(t, err.Error(), "should not exceed")
}

func TestSniffEditUploadMime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		wantMime string
		wantErr  string
	}{
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n0000"), wantMime: "image/png"},
		{name: "jpeg", data: []byte("\xff\xd8\xff\xe000JFIF"), wantMime: "image/jpeg"},
		{name: "webp", data: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), wantMime: "image/webp"},
		{name: "gif rejected", data: []byte("GIF89a0000"), wantErr: "unsupported image type"},
		{name: "text rejected", data: []byte("just some prose"), wantErr: "unsupported image type"},
		{name: "empty rejected", data: nil, wantErr: "empty image upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, err := img.SniffEditUploadMime(tt.data)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantMime, mime)
		})
	}
}

func TestGetImageSizeDispatch(t *testing.T) {
	t.Parallel()

	width, height, err := img.GetImageSize("data:image/png;base64," + b64PNG1x1)
	require.NoError(t, err)
	require.Equal(t, 1, width)
	require.Equal(t, 1, height)

	_, _, err = img.GetImageSize("data:image/png;base64,%%%broken")
	require.Error(t, err)
}

func TestGetImageSizeFromUrlRemote(t *testing.T) {
	raw := pngBytes(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	width, height, err := img.GetImageSizeFromUrl(server.URL + "/one.png")
	require.NoError(t, err)
	require.Equal(t, 1, width)
	require.Equal(t, 1, height)
}
