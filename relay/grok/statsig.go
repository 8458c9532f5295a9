package grok

import (
	"encoding/base64"
	"fmt"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/random"
)

// defaultStatsigID is the canned x-statsig-id observed from the upstream web
// client; it decodes to a TypeError crash string.
const defaultStatsigID = "ZTpUeXBlRXJyb3I6IENhbm5vdCByZWFkIHByb3BlcnRpZXMgb2YgdW5kZWZpbmVkIChyZWFkaW5nICdjaGlsZE5vZGVzJyk="

const lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
const lowerAlphaNum = "abcdefghijklmnopqrstuvwxyz0123456789"

// StatsigID returns the x-statsig-id header value. When dynamic generation is
// enabled it fabricates a fresh browser-crash-shaped identifier per request,
// otherwise it returns the configured (or canned) static value.
func StatsigID() string {
	if config.DynamicStatsig {
		return dynamicStatsigID()
	}
	if id := config.StaticStatsigID; id != "" {
		return id
	}
	return defaultStatsigID
}

// dynamicStatsigID base64-encodes one of the two crash strings the upstream
// web client is known to emit, with randomized property names so consecutive
// requests do not share an identifier.
func dynamicStatsigID() string {
	var raw string
	if random.RandRange(0, 2) == 0 {
		raw = fmt.Sprintf("e:TypeError: Cannot read properties of null (reading 'children['%s]')",
			randomChars(lowerAlphaNum, 5))
	} else {
		raw = fmt.Sprintf("e:TypeError: Cannot read properties of undefined (reading '%s')",
			randomChars(lowerAlpha, 10))
	}
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func randomChars(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[random.RandRange(0, len(alphabet))]
	}
	return string(b)
}
