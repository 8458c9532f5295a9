package controller

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/filecache"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// ServeCachedFile streams a cached asset. The wildcard is
// {media_type}/{asset path}; the asset path may be a flat cache key or the
// original upstream path, Lookup folds both onto the same file.
func ServeCachedFile(c *gin.Context) {
	raw := strings.TrimPrefix(c.Param("filepath"), "/")
	mediaType, name, ok := strings.Cut(raw, "/")
	if !ok || name == "" || !validMediaType(mediaType) {
		fileNotFound(c)
		return
	}

	local := filecache.Lookup(mediaType, name)
	if local == "" {
		fileNotFound(c)
		return
	}

	c.Header("Content-Type", filecache.MimeFor(local))
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(local)
}

func validMediaType(mediaType string) bool {
	return mediaType == filecache.MediaImage || mediaType == filecache.MediaVideo
}

func fileNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": relaymodel.Error{
			Message: "file not found",
			Type:    "invalid_request_error",
			Code:    "file_not_found",
		},
	})
}
