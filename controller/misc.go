package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/common/graceful"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/pool"
)

// Health answers liveness probes. A draining node reports 503 so load
// balancers stop routing to it while in-flight work finishes.
func Health(c *gin.Context) {
	if graceful.IsDraining() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus summarizes the running gateway for the admin panel: build info,
// pool counters, cache footprint, and which auth surfaces are enabled.
func GetStatus(c *gin.Context) {
	mgr := pool.Default()
	imageCount, imageBytes := filecache.Stats(filecache.MediaImage)
	videoCount, videoBytes := filecache.Stats(filecache.MediaVideo)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data": gin.H{
			"version":    common.Version,
			"start_time": common.StartTime,
			"pools": gin.H{
				model.PoolBasic: mgr.PoolStats(model.PoolBasic),
				model.PoolSuper: mgr.PoolStats(model.PoolSuper),
			},
			"cache": gin.H{
				filecache.MediaImage: gin.H{"count": imageCount, "size_bytes": imageBytes},
				filecache.MediaVideo: gin.H{"count": videoCount, "size_bytes": videoBytes},
			},
			"app_url":       config.AppURL,
			"image_format":  config.ImageFormat,
			"video_format":  config.VideoFormat,
			"login_enabled": config.AdminPasswordHash != "",
			"api_key_auth":  config.APIKeys != "",
			"master_node":   config.IsMasterNode,
			"metrics":       config.EnablePrometheusMetrics,
		},
	})
}
