package helper

import "strings"

const (
	// RequestIdKey stores the gin context key used to persist the current request identifier.
	RequestIdKey = "X-Grokapi-Request-Id"
)

// MaskToken returns a masked version of a credential for safe logging and
// admin listings. It shows the first 6 characters and last 4 characters,
// with "..." in between. For short values (less than 12 chars), it returns
// "***" to avoid exposing too much.
func MaskToken(token string) string {
	if len(token) < 12 {
		return "***"
	}
	return token[:6] + "..." + token[len(token)-4:]
}

// MaskTokenDisplay keeps enough of both ends for an operator to match a row
// back to a stored credential: the first 8 and last 16 characters. Values of
// 24 characters or fewer pass through unchanged. Any "sso=" cookie prefix is
// stripped first so the same credential always masks the same way.
func MaskTokenDisplay(token string) string {
	token = strings.TrimPrefix(strings.TrimSpace(token), "sso=")
	if len(token) > 24 {
		return token[:8] + "..." + token[len(token)-16:]
	}
	return token
}
