package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
)

func TestNormalizeAssetPath(t *testing.T) {
	cases := map[string]string{
		"https://assets.grok.com/users/u1/generated/a/image.jpg": "/users/u1/generated/a/image.jpg",
		"http://host/p/q?x=1":          "/p/q",
		"/users/u1/generated/a/v.mp4":  "/users/u1/generated/a/v.mp4",
		"users/u1/generated/a/img.png": "/users/u1/generated/a/img.png",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeAssetPath(in), "input %q", in)
	}
}

func TestRawBase64(t *testing.T) {
	assert.Equal(t, "QUJD", RawBase64("data:image/png;base64,QUJD"))
	assert.Equal(t, "QUJD", RawBase64("QUJD"), "bare payloads pass through")
	assert.Equal(t, "data:text/plain,hi", RawBase64("data:text/plain,hi"),
		"non-base64 data URIs are left alone")
}

func TestResolveAssetURLPassthrough(t *testing.T) {
	origApp := config.AppURL
	config.AppURL = ""
	t.Cleanup(func() { config.AppURL = origApp })

	got := ResolveAssetURL(context.Background(), "tok",
		"/users/u1/generated/a/image.jpg", filecache.MediaImage)
	assert.Equal(t, "https://assets.grok.com/users/u1/generated/a/image.jpg", got)

	got = ResolveAssetURL(context.Background(), "tok",
		"https://assets.grok.com/users/u1/generated/a/image.jpg", filecache.MediaImage)
	assert.Equal(t, "https://assets.grok.com/users/u1/generated/a/image.jpg", got)
}

func TestResolveAssetURLServesFromCache(t *testing.T) {
	useTempDataDir(t)
	origApp := config.AppURL
	config.AppURL = "http://gateway.local"
	t.Cleanup(func() { config.AppURL = origApp })

	path := "/users/u1/generated/a/image.jpg"
	_, err := filecache.Store(filecache.MediaImage, path, strings.NewReader("jpg-bytes"))
	require.NoError(t, err)

	got := ResolveAssetURL(context.Background(), "tok", path, filecache.MediaImage)
	assert.Equal(t, "http://gateway.local/v1/files/image/users/u1/generated/a/image.jpg", got)
}
