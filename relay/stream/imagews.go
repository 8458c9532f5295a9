package stream

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"sort"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/filecache"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// betterFrame keeps the stronger of two frames for one image id: finals beat
// non-finals, then larger blobs win.
func betterFrame(existing, incoming *grok.ImagineImage) *grok.ImagineImage {
	if existing == nil {
		return incoming
	}
	if incoming.IsFinal && !existing.IsFinal {
		return incoming
	}
	if existing.IsFinal && !incoming.IsFinal {
		return existing
	}
	if incoming.BlobSize > existing.BlobSize {
		return incoming
	}
	return existing
}

// frameLedger tracks the best frame per image id in arrival order.
type frameLedger struct {
	best map[string]*grok.ImagineImage
	seen []string
}

func newFrameLedger() *frameLedger {
	return &frameLedger{best: map[string]*grok.ImagineImage{}}
}

func (l *frameLedger) record(img *grok.ImagineImage) {
	if _, ok := l.best[img.ImageID]; !ok {
		l.seen = append(l.seen, img.ImageID)
	}
	l.best[img.ImageID] = betterFrame(l.best[img.ImageID], img)
}

// strongest returns the id of the best frame overall, earliest arrival
// breaking ties.
func (l *frameLedger) strongest() string {
	bestID := ""
	for _, id := range l.seen {
		if bestID == "" || betterFrame(l.best[bestID], l.best[id]) == l.best[id] {
			bestID = id
		}
	}
	return bestID
}

// ranked returns ids ordered best-first, arrival order breaking ties.
func (l *frameLedger) ranked() []string {
	ids := append([]string(nil), l.seen...)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := l.best[ids[i]], l.best[ids[j]]
		if a.IsFinal != b.IsFinal {
			return a.IsFinal
		}
		return a.BlobSize > b.BlobSize
	})
	return ids
}

// saveWSBlob publishes a socket frame's blob into the file cache and returns
// the gateway URL serving it. Finals are jpg renders, earlier stages png.
func saveWSBlob(imageID, blob string, isFinal bool) string {
	data := RawBase64(blob)
	if data == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		logger.Logger.Warn("decode imagine blob", zap.String("image_id", imageID), zap.Error(err))
		return ""
	}
	ext := "png"
	if isFinal {
		ext = "jpg"
	}
	name := imageID + "." + ext
	if _, err := filecache.Store(filecache.MediaImage, name, bytes.NewReader(raw)); err != nil {
		logger.Logger.Warn("store imagine blob", zap.String("image_id", imageID), zap.Error(err))
		return ""
	}
	if config.AppURL != "" {
		return config.AppURL + "/v1/files/image/" + name
	}
	return "/v1/files/image/" + name
}

// ImageWSStream relays imagine socket frames as image generation events.
// Partials carry inline b64_json regardless of the response format; the
// socket only ever delivers blobs. completed=true means every frame was
// relayed and the token should be billed.
func ImageWSStream(c *gin.Context, events <-chan grok.ImagineEvent, opts ImageOptions) (completed bool) {
	lg := gmw.GetLogger(c)
	common.SetEventStreamHeaders(c)

	ledger := newFrameLedger()
	indexMap := map[string]int{}
	partialMap := map[string]int{}
	var order []string
	targetID := ""

	for ev := range events {
		if clientGone(c.Request.Context()) {
			lg.Debug("client left imagine stream", zap.String("model", opts.Model))
			return false
		}

		if ev.Err != nil {
			message := ev.Err.Message
			if message == "" {
				message = "Upstream error"
			}
			code := ev.Err.Code
			if code == "" {
				code = "upstream_error"
			}
			emitImageEvent(c, "error", map[string]any{
				"error": map[string]any{
					"message": message,
					"type":    "server_error",
					"code":    code,
				},
			})
			return false
		}

		img := ev.Image
		if img == nil || img.ImageID == "" {
			continue
		}

		index := -1
		if opts.N == 1 {
			if targetID == "" {
				targetID = img.ImageID
			}
			if img.ImageID == targetID {
				index = 0
			}
		} else if i, ok := indexMap[img.ImageID]; ok {
			index = i
		} else if len(indexMap) < opts.N {
			index = len(indexMap)
			indexMap[img.ImageID] = index
			order = append(order, img.ImageID)
		}

		ledger.record(img)

		if index < 0 || img.IsFinal {
			continue
		}
		partialB64 := RawBase64(img.Blob)
		if partialB64 == "" {
			continue
		}
		partialIndex := partialMap[img.ImageID]
		if img.Stage == "medium" {
			partialIndex = max(partialIndex, 1)
		}
		partialMap[img.ImageID] = partialIndex
		emitImageEvent(c, eventImagePartial, map[string]any{
			"type":                eventImagePartial,
			"b64_json":            partialB64,
			"created_at":          helper.GetTimestamp(),
			"size":                opts.Size,
			"index":               index,
			"partial_image_index": partialIndex,
		})
	}

	var selected []string
	if opts.N == 1 {
		switch {
		case targetID != "" && ledger.best[targetID] != nil:
			selected = []string{targetID}
		case len(ledger.seen) > 0:
			selected = []string{ledger.strongest()}
		}
	} else {
		selected = order
	}

	for _, id := range selected {
		img := ledger.best[id]
		if img == nil {
			continue
		}
		output := RawBase64(img.Blob)
		if output == "" {
			continue
		}
		index := 0
		if opts.N != 1 {
			index = indexMap[id]
		}
		emitImageEvent(c, eventImageCompleted, map[string]any{
			"type":       eventImageCompleted,
			"b64_json":   output,
			"created_at": helper.GetTimestamp(),
			"size":       opts.Size,
			"index":      index,
			"usage":      relaymodel.ImageUsage{},
		})
	}
	return true
}

// ImageWSCollect drains the socket and returns up to n payloads, best frame
// per image, finals first. Unlike the lenient HTTP collector an upstream
// error event aborts the whole call: the socket reports moderation blocks
// this way and they must not look like an empty result.
func ImageWSCollect(events <-chan grok.ImagineEvent, opts ImageOptions) ([]string, *relaymodel.ErrorWithStatusCode) {
	ledger := newFrameLedger()

	for ev := range events {
		if ev.Err != nil {
			message := ev.Err.Message
			if message == "" {
				message = "Upstream error"
			}
			code := ev.Err.Code
			if code == "" {
				code = "upstream_error"
			}
			status := ev.Err.Status
			if status == 0 {
				status = http.StatusBadGateway
			}
			return nil, relaymodel.NewError(status, relaymodel.ErrorTypeUpstream, code, message)
		}
		if ev.Image == nil || ev.Image.ImageID == "" {
			continue
		}
		ledger.record(ev.Image)
	}

	ids := ledger.ranked()
	if opts.N > 0 && len(ids) > opts.N {
		ids = ids[:opts.N]
	}

	results := make([]string, 0, len(ids))
	for _, id := range ids {
		img := ledger.best[id]
		var output string
		if opts.ResponseFormat == relaymodel.ImageFormatURL {
			output = saveWSBlob(id, img.Blob, img.IsFinal)
		} else {
			output = RawBase64(img.Blob)
		}
		if output != "" {
			results = append(results, output)
		}
	}
	return results, nil
}
