package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/ctxkey"
	"github.com/fuchsia74/grok-api/common/helper"
)

func bearerToken(c *gin.Context) string {
	auth := c.Request.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// APIKeyAuth guards the OpenAI-compatible surface. With no keys configured
// the gateway is open, which suits single-user deployments that sit behind
// their own front auth.
func APIKeyAuth() func(c *gin.Context) {
	return func(c *gin.Context) {
		keys := config.ParseAPIKeys()
		if len(keys) == 0 {
			c.Set(ctxkey.Role, "api")
			c.Next()
			return
		}

		key := bearerToken(c)
		if key == "" {
			AbortWithError(c, http.StatusUnauthorized,
				errors.New("missing Authorization header, expected Bearer key"))
			return
		}
		if !keys[key] {
			AbortWithError(c, http.StatusUnauthorized, errors.New("invalid API key"))
			return
		}

		c.Set(ctxkey.ClientKey, helper.MaskToken(key))
		c.Set(ctxkey.Role, "api")
		c.Next()
	}
}

// AdminAuth guards the management surface. Either the app key as a bearer
// token or a logged-in session opens it.
func AdminAuth() func(c *gin.Context) {
	return func(c *gin.Context) {
		if key := bearerToken(c); key != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(config.AppKey)) == 1 {
				c.Set(ctxkey.Role, "admin")
				c.Next()
				return
			}
			AbortWithError(c, http.StatusUnauthorized, errors.New("invalid app key"))
			return
		}

		session := sessions.Default(c)
		if role, _ := session.Get("role").(string); role == "admin" {
			c.Set(ctxkey.Role, "admin")
			c.Next()
			return
		}

		AbortWithError(c, http.StatusUnauthorized,
			errors.New("admin authentication required: app key bearer or login session"))
	}
}
