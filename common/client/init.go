package client

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/common/network"
)

// HTTPClient carries all upstream API traffic (chat, uploads, video, media
// posts). It has no overall timeout: chat and video streams legitimately run
// for minutes, so hung connections are handled by per-request contexts and
// the stream idle watchdogs instead.
var HTTPClient *http.Client

// AssetHTTPClient talks to the asset host (downloads, asset listing and
// deletion). Asset responses are bounded, so it carries the standard
// upstream timeout.
var AssetHTTPClient *http.Client

// ImpatientHTTPClient is a short-timeout client for rate-limit probes and
// token liveness checks where a slow answer is as useless as no answer.
var ImpatientHTTPClient *http.Client

// UserContentRequestHTTPClient fetches user-supplied resources such as chat
// image_url entries, optionally via a dedicated proxy and with internal
// address blocking.
var UserContentRequestHTTPClient *http.Client

// Init builds the shared HTTP clients with proxy and timeout settings derived
// from configuration.
func Init() {
	// HTTP/2 is disabled on every transport: the upstream occasionally
	// resets long-lived h2 streams mid-response, while HTTP/1.1 chunked
	// responses survive.
	createTransport := func(proxyURL *url.URL, blockInternal bool) *http.Transport {
		dialer := &net.Dialer{
			Timeout:   config.UpstreamConnectTimeout,
			KeepAlive: 30 * time.Second,
		}

		if blockInternal {
			dialer.Control = func(networkName, address string, c syscall.RawConn) error {
				host, _, err := net.SplitHostPort(address)
				if err != nil {
					return errors.Wrapf(err, "failed to split host port: %s", address)
				}
				ip := net.ParseIP(host)
				if ip == nil {
					return errors.Errorf("SSRF protection: failed to parse IP address: %s", host)
				}
				if network.IsForbiddenIP(ip) {
					return errors.Errorf("SSRF protection: internal IP %s is blocked", ip)
				}
				return nil
			}
		}

		transport := &http.Transport{
			DialContext:  dialer.DialContext,
			TLSNextProto: make(map[string]func(authority string, c *tls.Conn) http.RoundTripper), // Disable HTTP/2
		}
		if proxyURL != nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		return transport
	}

	mustParseProxy := func(envName, raw string) *url.URL {
		if raw == "" {
			return nil
		}
		proxyURL, err := url.Parse(raw)
		if err != nil {
			logger.Logger.Fatal(fmt.Sprintf("%s set but invalid: %s", envName, raw))
		}
		logger.Logger.Info("routing outbound traffic through proxy",
			zap.String("env", envName), zap.String("proxy", raw))
		return proxyURL
	}

	baseProxy := mustParseProxy("BASE_PROXY_URL", config.BaseProxyURL)
	HTTPClient = &http.Client{
		Transport: createTransport(baseProxy, false),
	}

	assetProxy := baseProxy
	if config.AssetProxyURL != "" {
		assetProxy = mustParseProxy("ASSET_PROXY_URL", config.AssetProxyURL)
	}
	AssetHTTPClient = &http.Client{
		Transport: createTransport(assetProxy, false),
		Timeout:   config.UpstreamTimeout,
	}

	ImpatientHTTPClient = &http.Client{
		Transport: createTransport(baseProxy, false),
		Timeout:   15 * time.Second,
	}

	userContentProxy := mustParseProxy("USER_CONTENT_REQUEST_PROXY", config.UserContentRequestProxy)
	UserContentRequestHTTPClient = &http.Client{
		Transport: createTransport(userContentProxy, config.BlockInternalUserContentRequests),
		Timeout:   time.Second * time.Duration(config.UserContentRequestTimeout),
	}
}
