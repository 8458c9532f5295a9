// Package grok talks to the upstream consumer web product: browser-shaped
// headers, the reverse REST/gRPC-Web/WebSocket endpoints, and the statsig
// anti-bot identifier. All clients run inside the retry engine and surface
// failures as *UpstreamError so callers can feed the pool accounting.
package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v5"
	"golang.org/x/sync/semaphore"

	"github.com/fuchsia74/grok-api/common/client"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/monitor"
)

// Per-endpoint concurrency gates. Upstream tolerates only modest parallelism
// per cookie before tripping bot detection, so each endpoint family shares
// one weighted semaphore across the process.
var (
	assetsSem *semaphore.Weighted
	uploadSem *semaphore.Weighted
	usageSem  *semaphore.Weighted
	nsfwSem   *semaphore.Weighted
	mediaSem  *semaphore.Weighted
)

func init() {
	assetsSem = semaphore.NewWeighted(int64(max(1, config.AssetsMaxConcurrent)))
	uploadSem = semaphore.NewWeighted(int64(max(1, config.UploadMaxConcurrent)))
	usageSem = semaphore.NewWeighted(int64(max(1, config.UsageMaxConcurrent)))
	nsfwSem = semaphore.NewWeighted(int64(max(1, config.NSFWMaxConcurrent)))
	mediaSem = semaphore.NewWeighted(int64(max(1, config.MediaMaxConcurrent)))
}

// acquire blocks on the gate until a slot frees or the context dies.
func acquire(ctx context.Context, sem *semaphore.Weighted) (release func(), err error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "acquire endpoint slot")
	}
	return func() { sem.Release(1) }, nil
}

// metricEndpoint folds an endpoint URL into a bounded metrics label: host
// and query stripped, per-asset path segments collapsed.
func metricEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, assetsDownload) {
		return "/assets/download"
	}
	endpoint = strings.TrimPrefix(endpoint, GrokOrigin)
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	if strings.HasPrefix(endpoint, "/rest/assets/") {
		return "/rest/assets/:id"
	}
	return endpoint
}

// observe records one upstream exchange; a nil response means the transport
// failed before any status arrived.
func observe(endpoint string, resp *http.Response) {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	monitor.RecordUpstreamRequest(metricEndpoint(endpoint), status)
}

// postJSON sends a JSON payload with the standard browser header set and
// returns the decoded response body. Non-2xx statuses become *UpstreamError.
func postJSON(ctx context.Context, httpc *http.Client, endpoint, token string, payload any, out any, opts ...HeaderOption) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	req, err := gutils.NewReusableRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header = BuildHeaders(token, opts...)

	resp, err := httpc.Do(req)
	observe(endpoint, resp)
	if err != nil {
		return errors.Wrapf(err, "post %s", endpoint)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s response", endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewUpstreamErrorFromResponse(endpoint, resp, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "decode %s response", endpoint)
		}
	}
	return nil
}

// getJSON issues a GET with the standard browser header set and decodes the
// JSON response. Non-2xx statuses become *UpstreamError.
func getJSON(ctx context.Context, httpc *http.Client, endpoint, token string, out any, opts ...HeaderOption) error {
	req, err := gutils.NewReusableRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header = BuildHeaders(token, opts...)

	resp, err := httpc.Do(req)
	observe(endpoint, resp)
	if err != nil {
		return errors.Wrapf(err, "get %s", endpoint)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s response", endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewUpstreamErrorFromResponse(endpoint, resp, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "decode %s response", endpoint)
		}
	}
	return nil
}

// impatientClient is used for short JSON calls, streamClient for bodies we
// keep reading after the call returns.
func impatientClient() *http.Client { return client.ImpatientHTTPClient }
func streamClient() *http.Client    { return client.HTTPClient }
func assetClient() *http.Client     { return client.AssetHTTPClient }
