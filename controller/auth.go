package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
)

// LoginRequest is the admin session login body.
type LoginRequest struct {
	Password string `json:"password"`
}

// Login opens an admin session when the password matches the stored bcrypt
// hash. An empty hash disables password login entirely, the app key keeps
// working either way.
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "invalid parameter",
		})
		return
	}
	if config.AdminPasswordHash == "" {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "password login is disabled, authenticate with the app key instead",
		})
		return
	}
	if req.Password == "" || !common.ValidatePasswordAndHash(req.Password, config.AdminPasswordHash) {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "wrong password",
		})
		return
	}

	session := sessions.Default(c)
	session.Set("role", "admin")
	session.Set("login_at", helper.GetTimestamp())
	if err := session.Save(); err != nil {
		helper.RespondError(c, errors.Wrap(err, "unable to save login session information"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    gin.H{"role": "admin"},
	})
}

// Logout clears the admin session.
func Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
	})
}
