package stream

import (
	"context"
	"net/url"
	"strings"

	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/relay/grok"
	"github.com/fuchsia74/grok-api/relay/retry"
)

// assetOrigin serves upstream-generated media when the gateway does not
// proxy it through the local cache.
const assetOrigin = "https://assets.grok.com"

// normalizeAssetPath reduces an absolute upstream URL or bare path to a
// rooted path.
func normalizeAssetPath(raw string) string {
	if strings.HasPrefix(raw, "http") {
		if u, err := url.Parse(raw); err == nil {
			raw = u.Path
		}
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return raw
}

// fetchToCache returns a local copy of the asset, downloading it with the
// session token when the cache misses.
func fetchToCache(ctx context.Context, token, assetPath, mediaType string) (string, error) {
	if local := filecache.Lookup(mediaType, assetPath); local != "" {
		return local, nil
	}

	var local string
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		resp, err := grok.DownloadAsset(ctx, token, assetPath)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		local, err = filecache.Store(mediaType, assetPath, resp.Body)
		return err
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

// ResolveAssetURL rewrites an upstream asset reference into the URL relayed
// to the client. With AppURL configured the asset is pulled into the local
// cache and served from /v1/files; a failed pull still yields the rewritten
// URL so the client can retry through the file endpoint later. Without
// AppURL the upstream CDN URL is passed through.
func ResolveAssetURL(ctx context.Context, token, rawPath, mediaType string) string {
	assetPath := normalizeAssetPath(rawPath)
	if config.AppURL == "" {
		return assetOrigin + assetPath
	}

	if _, err := fetchToCache(ctx, token, assetPath, mediaType); err != nil {
		logger.Logger.Warn("cache asset",
			zap.String("path", assetPath),
			zap.String("type", mediaType),
			zap.Error(err))
	}
	return config.AppURL + "/v1/files/" + mediaType + assetPath
}

// ResolveBase64 downloads the asset and returns it as a data URI. The
// cached copy is dropped after encoding so one-shot inline responses do not
// accumulate on disk.
func ResolveBase64(ctx context.Context, token, rawPath, mediaType string) (string, error) {
	assetPath := normalizeAssetPath(rawPath)
	local, err := fetchToCache(ctx, token, assetPath, mediaType)
	if err != nil {
		return "", err
	}
	return filecache.ReadBase64AndDrop(local)
}

// RawBase64 strips the data URI envelope, leaving the bare payload for
// b64_json response fields.
func RawBase64(dataURI string) string {
	if i := strings.IndexByte(dataURI, ','); i >= 0 && strings.Contains(dataURI[:i], "base64") {
		return dataURI[i+1:]
	}
	return dataURI
}
