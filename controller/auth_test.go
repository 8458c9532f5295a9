package controller

import (
	"net/http"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
)

func authRouter() *gin.Engine {
	engine := testEngine()
	engine.Use(sessions.Sessions("session", cookie.NewStore([]byte("0123456789abcdef"))))
	engine.POST("/admin/login", Login)
	engine.POST("/admin/logout", Logout)
	return engine
}

func setAdminPassword(t *testing.T, password string) {
	t.Helper()

	orig := config.AdminPasswordHash
	t.Cleanup(func() { config.AdminPasswordHash = orig })

	if password == "" {
		config.AdminPasswordHash = ""
		return
	}
	hash, err := common.Password2Hash(password)
	require.NoError(t, err)
	config.AdminPasswordHash = hash
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	setAdminPassword(t, "")
	engine := authRouter()

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodPost, "/admin/login", map[string]any{
		"password": "anything",
	}))
	require.False(t, env.Success)
	assert.Contains(t, env.Message, "disabled")
}

func TestLoginWrongPassword(t *testing.T) {
	setAdminPassword(t, "correct horse")
	engine := authRouter()

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodPost, "/admin/login", map[string]any{
		"password": "battery staple",
	}))
	require.False(t, env.Success)
	assert.Equal(t, "wrong password", env.Message)

	env = decodeEnvelope(t, doJSON(t, engine, http.MethodPost, "/admin/login", map[string]any{
		"password": "",
	}))
	require.False(t, env.Success)
	assert.Equal(t, "wrong password", env.Message)
}

func TestLoginSetsSession(t *testing.T) {
	setAdminPassword(t, "correct horse")
	engine := authRouter()

	rec := doJSON(t, engine, http.MethodPost, "/admin/login", map[string]any{
		"password": "correct horse",
	})
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	assert.Contains(t, string(env.Data), "admin")
	assert.NotEmpty(t, rec.Result().Cookies(), "login must set the session cookie")
}

func TestLogoutClearsSession(t *testing.T) {
	setAdminPassword(t, "correct horse")
	engine := authRouter()

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodPost, "/admin/logout", nil))
	require.True(t, env.Success)
}
