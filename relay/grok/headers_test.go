package grok

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok-api/common/config"
)

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc123", NormalizeToken("sso=abc123"))
	assert.Equal(t, "abc123", NormalizeToken("  abc123 "))
	assert.Equal(t, "sso-rw=x", NormalizeToken("sso-rw=x"))
}

func TestSSOCookie(t *testing.T) {
	old := config.CfClearance
	defer func() { config.CfClearance = old }()

	config.CfClearance = ""
	assert.Equal(t, "sso=tok; sso-rw=tok", SSOCookie("sso=tok"))

	config.CfClearance = "cfv"
	assert.Equal(t, "sso=tok; sso-rw=tok;cf_clearance=cfv", SSOCookie("tok"))
}

func TestBuildHeaders_JSONDefaults(t *testing.T) {
	h := BuildHeaders("tok")

	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "*/*", h.Get("Accept"))
	assert.Equal(t, "empty", h.Get("Sec-Fetch-Dest"))
	assert.Equal(t, "same-origin", h.Get("Sec-Fetch-Site"))
	assert.Equal(t, GrokOrigin, h.Get("Origin"))
	assert.Equal(t, GrokOrigin+"/", h.Get("Referer"))
	assert.Contains(t, h.Get("Cookie"), "sso=tok; sso-rw=tok")
	assert.NotEmpty(t, h.Get("x-statsig-id"))
	assert.NotEmpty(t, h.Get("x-xai-request-id"))
}

func TestBuildHeaders_DocumentTypes(t *testing.T) {
	h := BuildHeaders("tok", WithContentType("image/jpeg"))
	assert.Equal(t, "document", h.Get("Sec-Fetch-Dest"))
	assert.True(t, strings.HasPrefix(h.Get("Accept"), "text/html,"))
}

func TestBuildHeaders_CrossSite(t *testing.T) {
	h := BuildHeaders("tok",
		WithOrigin("https://assets.grok.com"),
		WithReferer(GrokOrigin+"/"))
	assert.Equal(t, "same-site", h.Get("Sec-Fetch-Site"))

	h = BuildHeaders("tok",
		WithOrigin(AccountsOrigin),
		WithReferer(AccountsOrigin+"/accept-tos"))
	assert.Equal(t, "same-origin", h.Get("Sec-Fetch-Site"))
}

func TestBuildWSHeaders(t *testing.T) {
	h := BuildWSHeaders("tok")
	assert.Equal(t, GrokOrigin, h.Get("Origin"))
	assert.Contains(t, h.Get("Cookie"), "sso=tok")
	// fetch-metadata headers break the websocket handshake
	assert.Empty(t, h.Get("Sec-Fetch-Dest"))
	assert.Empty(t, h.Get("x-statsig-id"))
}

func TestStatsigID_Static(t *testing.T) {
	oldDynamic, oldStatic := config.DynamicStatsig, config.StaticStatsigID
	defer func() { config.DynamicStatsig, config.StaticStatsigID = oldDynamic, oldStatic }()

	config.DynamicStatsig = false
	config.StaticStatsigID = ""
	assert.Equal(t, defaultStatsigID, StatsigID())

	config.StaticStatsigID = "custom"
	assert.Equal(t, "custom", StatsigID())
}

func TestStatsigID_DynamicDecodesToCrashString(t *testing.T) {
	oldDynamic := config.DynamicStatsig
	defer func() { config.DynamicStatsig = oldDynamic }()
	config.DynamicStatsig = true

	seen := map[string]bool{}
	for range 16 {
		id := StatsigID()
		raw, err := base64.StdEncoding.DecodeString(id)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(raw), "e:TypeError: Cannot read properties of"))
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1, "dynamic ids should vary")
}
