package grok

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/fuchsia74/grok-api/common/config"
)

// Upstream endpoints. All browser traffic the gateway reproduces goes to
// grok.com except account management, which lives on accounts.x.ai.
const (
	GrokOrigin     = "https://grok.com"
	AccountsOrigin = "https://accounts.x.ai"
)

const documentAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"

// NormalizeToken strips an accidental "sso=" prefix so stored credentials are
// always the bare cookie value.
func NormalizeToken(token string) string {
	return strings.TrimPrefix(strings.TrimSpace(token), "sso=")
}

// SSOCookie renders the upstream session cookie pair, appending the
// Cloudflare clearance cookie when one is configured.
func SSOCookie(token string) string {
	token = NormalizeToken(token)
	cookie := "sso=" + token + "; sso-rw=" + token
	if config.CfClearance != "" {
		cookie += ";cf_clearance=" + config.CfClearance
	}
	return cookie
}

// headerOptions carries the per-call knobs of BuildHeaders.
type headerOptions struct {
	contentType string
	origin      string
	referer     string
}

// HeaderOption customizes BuildHeaders beyond the JSON-API defaults.
type HeaderOption func(*headerOptions)

// WithContentType overrides the Content-Type header. Image and video types
// switch the Accept and Sec-Fetch-Dest pair to the browser's document form.
func WithContentType(ct string) HeaderOption {
	return func(o *headerOptions) { o.contentType = ct }
}

// WithOrigin overrides the Origin header.
func WithOrigin(origin string) HeaderOption {
	return func(o *headerOptions) { o.origin = origin }
}

// WithReferer overrides the Referer header.
func WithReferer(referer string) HeaderOption {
	return func(o *headerOptions) { o.referer = referer }
}

// BuildHeaders reproduces the header set the upstream web client sends,
// authenticated as the given pool token. Defaults describe a JSON API call
// originating from the grok.com landing page.
func BuildHeaders(token string, opts ...HeaderOption) http.Header {
	o := headerOptions{
		contentType: "application/json",
		origin:      GrokOrigin,
		referer:     GrokOrigin + "/",
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := http.Header{}
	h.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Baggage", "sentry-environment=production,sentry-release=d6add6fb0460641fd482d767a335ef72b9b6abb8,sentry-public_key=b311e0f2690c81f25e2c4cf6d4f7ce1c")
	h.Set("Origin", o.origin)
	h.Set("Priority", "u=1, i")
	h.Set("Referer", o.referer)
	h.Set("Sec-Ch-Ua", `"Google Chrome";v="136", "Chromium";v="136", "Not(A:Brand";v="24"`)
	h.Set("Sec-Ch-Ua-Arch", "arm")
	h.Set("Sec-Ch-Ua-Bitness", "64")
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Model", "")
	h.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("User-Agent", config.UserAgent)
	h.Set("Cookie", SSOCookie(token))

	switch o.contentType {
	case "image/jpeg", "image/png", "video/mp4", "video/webm":
		h.Set("Content-Type", o.contentType)
		h.Set("Accept", documentAccept)
		h.Set("Sec-Fetch-Dest", "document")
	default:
		h.Set("Content-Type", o.contentType)
		h.Set("Accept", "*/*")
		h.Set("Sec-Fetch-Dest", "empty")
	}

	if sameHost(o.origin, o.referer) {
		h.Set("Sec-Fetch-Site", "same-origin")
	} else {
		h.Set("Sec-Fetch-Site", "same-site")
	}

	h.Set("x-statsig-id", StatsigID())
	h.Set("x-xai-request-id", uuid.New().String())

	return h
}

func sameHost(origin, referer string) bool {
	ou, err := url.Parse(origin)
	if err != nil || ou.Hostname() == "" {
		return false
	}
	ru, err := url.Parse(referer)
	if err != nil || ru.Hostname() == "" {
		return false
	}
	return ou.Hostname() == ru.Hostname()
}
