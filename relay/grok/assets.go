package grok

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v5"
	"golang.org/x/sync/errgroup"
)

const (
	assetsEndpoint  = GrokOrigin + "/rest/assets"
	assetsDownload  = "https://assets.grok.com"
	assetsListSize  = 100
	assetsListPages = 100 // hard stop against a looping pageToken
	assetsFilesPage = GrokOrigin + "/files"
)

// AssetURL returns the public assets address of an uploaded file URI.
func AssetURL(fileURI string) string {
	return assetsDownload + "/" + strings.TrimPrefix(fileURI, "/")
}

// Asset is one row of the upstream asset listing. Only the fields the
// gateway consumes are decoded.
type Asset struct {
	AssetID    string `json:"assetId"`
	Name       string `json:"name"`
	MimeType   string `json:"mimeType"`
	SizeBytes  string `json:"sizeBytes"`
	CreateTime string `json:"createTime"`
}

type assetListPage struct {
	Assets        []Asset `json:"assets"`
	NextPageToken string  `json:"nextPageToken"`
}

// ListAssets walks the paginated asset listing until the page token repeats
// or disappears, returning every asset owned by the token's account.
func ListAssets(ctx context.Context, token string) ([]Asset, error) {
	release, err := acquire(ctx, assetsSem)
	if err != nil {
		return nil, err
	}
	defer release()

	var all []Asset
	pageToken := ""
	for page := 0; page < assetsListPages; page++ {
		endpoint := fmt.Sprintf("%s?pageSize=%d", assetsEndpoint, assetsListSize)
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var out assetListPage
		if err := getJSON(ctx, impatientClient(), endpoint, token, &out,
			WithReferer(assetsFilesPage)); err != nil {
			return nil, err
		}
		all = append(all, out.Assets...)

		if out.NextPageToken == "" || out.NextPageToken == pageToken {
			break
		}
		pageToken = out.NextPageToken
	}
	return all, nil
}

// CountAssets returns how many assets the token's account holds.
func CountAssets(ctx context.Context, token string) (int, error) {
	assets, err := ListAssets(ctx, token)
	if err != nil {
		return 0, err
	}
	return len(assets), nil
}

// DeleteAsset removes one asset by id.
func DeleteAsset(ctx context.Context, token, assetID string) error {
	release, err := acquire(ctx, assetsSem)
	if err != nil {
		return err
	}
	defer release()

	endpoint := assetsEndpoint + "/" + url.PathEscape(assetID)
	req, err := gutils.NewReusableRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "new delete request")
	}
	req.Header = BuildHeaders(token, WithReferer(assetsFilesPage))

	resp, err := impatientClient().Do(req)
	observe(endpoint, resp)
	if err != nil {
		return errors.Wrapf(err, "delete asset %s", assetID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return NewUpstreamErrorFromResponse(endpoint, resp, body)
	}
	return nil
}

// DeleteAllResult summarizes a full-account asset wipe.
type DeleteAllResult struct {
	Total   int `json:"total"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// DeleteAllAssets lists then deletes every asset of the account, a few at a
// time. Individual delete failures are counted, not fatal.
func DeleteAllAssets(ctx context.Context, token string, batchSize int) (*DeleteAllResult, error) {
	assets, err := ListAssets(ctx, token)
	if err != nil {
		return nil, err
	}

	result := &DeleteAllResult{Total: len(assets)}
	if len(assets) == 0 {
		return result, nil
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	var deleted, failed int
	for start := 0; start < len(assets); start += batchSize {
		end := min(start+batchSize, len(assets))
		g, gctx := errgroup.WithContext(ctx)
		results := make([]error, end-start)
		for i, asset := range assets[start:end] {
			g.Go(func() error {
				results[i] = DeleteAsset(gctx, token, asset.AssetID)
				return nil
			})
		}
		_ = g.Wait()
		for _, derr := range results {
			if derr != nil {
				failed++
			} else {
				deleted++
			}
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "delete all assets")
		}
	}

	result.Deleted = deleted
	result.Failed = failed
	return result, nil
}

var assetContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// DownloadAsset streams a binary from assets.grok.com. The returned body is
// live; the caller must close it. Headers imitate a browser download
// navigation, which the CDN expects for direct asset fetches.
func DownloadAsset(ctx context.Context, token, filePath string) (*http.Response, error) {
	release, err := acquire(ctx, assetsSem)
	if err != nil {
		return nil, err
	}
	defer release()

	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	endpoint := assetsDownload + filePath

	opts := []HeaderOption{
		WithOrigin(assetsDownload),
		WithReferer(GrokOrigin + "/"),
	}
	if ct, ok := assetContentTypes[strings.ToLower(path.Ext(strippedPath(filePath)))]; ok {
		opts = append(opts, WithContentType(ct))
	}

	req, err := gutils.NewReusableRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new download request")
	}
	req.Header = BuildHeaders(token, opts...)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Priority", "u=0, i")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := assetClient().Do(req)
	observe(endpoint, resp)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", filePath)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, NewUpstreamErrorFromResponse(endpoint, resp, body)
	}
	return resp, nil
}

func strippedPath(p string) string {
	if u, err := url.Parse(p); err == nil {
		return u.Path
	}
	return p
}
