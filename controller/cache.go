package controller

import (
	"net/http"
	"strconv"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/monitor"
)

// GetCacheEntries pages through the local asset cache, newest first.
func GetCacheEntries(c *gin.Context) {
	mediaType := c.DefaultQuery("media_type", filecache.MediaImage)
	if !validMediaType(mediaType) {
		helper.RespondError(c, errors.Errorf("unknown media type %s", mediaType))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	total, items, err := filecache.List(mediaType, page, pageSize)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    items,
		"total":   total,
	})
}

// DeleteCacheEntry removes one cached file.
func DeleteCacheEntry(c *gin.Context) {
	mediaType := c.Param("media_type")
	if !validMediaType(mediaType) {
		helper.RespondError(c, errors.Errorf("unknown media type %s", mediaType))
		return
	}
	name := c.Param("name")
	if !filecache.Remove(mediaType, name) {
		helper.RespondError(c, errors.Errorf("no cached file %s", name))
		return
	}
	refreshCacheGauge(mediaType)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
	})
}

// ClearCache wipes the local cache, either one media type or both.
func ClearCache(c *gin.Context) {
	mediaTypes := []string{filecache.MediaImage, filecache.MediaVideo}
	if mt := c.Query("media_type"); mt != "" {
		if !validMediaType(mt) {
			helper.RespondError(c, errors.Errorf("unknown media type %s", mt))
			return
		}
		mediaTypes = []string{mt}
	}

	cleared := gin.H{}
	for _, mt := range mediaTypes {
		count, freed := filecache.Clear(mt)
		refreshCacheGauge(mt)
		cleared[mt] = gin.H{"removed": count, "freed_bytes": freed}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    cleared,
	})
}

func refreshCacheGauge(mediaType string) {
	_, size := filecache.Stats(mediaType)
	monitor.SetCacheBytes(mediaType, size)
}
