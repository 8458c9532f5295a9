package grok

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"github.com/gorilla/websocket"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/common/random"
)

const imagineEndpoint = "wss://grok.com/ws/imagine/listen"

// imagine socket pacing: receive poll window, idle exit once something
// finished, and the keepalive ping interval.
const (
	imagineRecvPoll  = 5 * time.Second
	imagineIdleExit  = 10 * time.Second
	imaginePingEvery = 20 * time.Second
)

var imageURLRe = regexp.MustCompile(`/images/([a-f0-9-]+)\.(png|jpg|jpeg)`)

// ImagineRequest describes one image generation run over the socket.
type ImagineRequest struct {
	Prompt      string
	AspectRatio string
	N           int
	EnableNSFW  bool
}

// ImagineImage is one classified frame. Upstream sends several frames per
// image id with growing blobs; Stage is preview, medium or final.
type ImagineImage struct {
	ImageID  string
	Ext      string
	Stage    string
	Blob     string
	BlobSize int
	URL      string
	IsFinal  bool
}

// ImagineError terminates a socket stream.
type ImagineError struct {
	Code    string
	Status  int
	Message string
}

// ImagineEvent carries exactly one of Image or Err.
type ImagineEvent struct {
	Image *ImagineImage
	Err   *ImagineError
}

type imagineInbound struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Blob    string `json:"blob"`
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// BuildWSHeaders is the trimmed browser header set WebSocket dials use; the
// handshake rejects most of the fetch-metadata headers REST calls carry.
func BuildWSHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Origin", GrokOrigin)
	h.Set("User-Agent", config.UserAgent)
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Cookie", SSOCookie(token))
	return h
}

func buildImagineMessage(requestID string, req ImagineRequest) map[string]any {
	return map[string]any{
		"type":      "conversation.item.create",
		"timestamp": time.Now().UnixMilli(),
		"item": map[string]any{
			"type": "message",
			"content": []map[string]any{{
				"requestId": requestID,
				"text":      req.Prompt,
				"type":      "input_text",
				"properties": map[string]any{
					"section_count":  0,
					"is_kids_mode":   false,
					"enable_nsfw":    req.EnableNSFW,
					"skip_upsampler": false,
					"is_initial":     false,
					"aspect_ratio":   req.AspectRatio,
				},
			}},
		},
	}
}

// classifyImagineFrame stages a frame by URL extension and blob size. Final
// frames are jpg/jpeg renders or anything larger than the final threshold.
func classifyImagineFrame(rawURL, blob string) *ImagineImage {
	if rawURL == "" || blob == "" {
		return nil
	}

	var id, ext string
	if m := imageURLRe.FindStringSubmatch(rawURL); m != nil {
		id, ext = m[1], strings.ToLower(m[2])
	} else {
		id = random.GetUUID()
	}

	size := len(blob)
	lower := strings.ToLower(rawURL)
	isFinal := strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") ||
		size > config.ImageWSFinalMinBytes

	stage := "preview"
	switch {
	case isFinal:
		stage = "final"
	case size > config.ImageWSMediumMinBytes:
		stage = "medium"
	}

	return &ImagineImage{
		ImageID:  id,
		Ext:      ext,
		Stage:    stage,
		Blob:     blob,
		BlobSize: size,
		URL:      rawURL,
		IsFinal:  isFinal,
	}
}

// StreamImagine dials the imagine socket, submits the generation request and
// forwards classified frames until n finals arrive, the socket idles out
// after at least one final, or the overall deadline passes. A medium frame
// that is never followed by a final within the blocked window terminates the
// stream with a blocked error. The returned channel closes when the stream
// is over.
func StreamImagine(ctx context.Context, token string, req ImagineRequest) <-chan ImagineEvent {
	out := make(chan ImagineEvent, 8)
	go func() {
		defer close(out)
		streamImagine(ctx, token, req, out)
	}()
	return out
}

func streamImagine(ctx context.Context, token string, req ImagineRequest, out chan<- ImagineEvent) {
	lgr := logger.Logger.With(zap.String("aspect_ratio", req.AspectRatio), zap.Int("n", req.N))

	emit := func(ev ImagineEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(code string, status int, msg string) {
		emit(ImagineEvent{Err: &ImagineError{Code: code, Status: status, Message: msg}})
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  30 * time.Second,
		Proxy:             http.ProxyFromEnvironment,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(ctx, imagineEndpoint, BuildWSHeaders(token))
	if err != nil {
		status := 0
		code := "connection_failed"
		if resp != nil {
			status = resp.StatusCode
			if status == http.StatusTooManyRequests {
				code = "rate_limit_exceeded"
			}
		}
		lgr.Warn("imagine socket dial failed", zap.Int("status", status), zap.Error(err))
		fail(code, status, err.Error())
		return
	}
	defer conn.Close()

	requestID := random.GetUUID()
	if err := conn.WriteJSON(buildImagineMessage(requestID, req)); err != nil {
		fail("ws_stream_failed", 0, err.Error())
		return
	}

	blockedWindow := time.Duration(config.ImageWSBlockedSeconds) * time.Second
	blockedGrace := min(imagineIdleExit, blockedWindow)
	deadline := time.Now().Add(config.UpstreamTimeout)

	finals := make(map[string]bool)
	completed := 0
	lastActivity := time.Now()
	lastPing := time.Now()
	var firstMedium time.Time

	blocked := func(now time.Time, grace time.Duration) bool {
		return !firstMedium.IsZero() && completed == 0 && now.Sub(firstMedium) > grace
	}

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		if time.Since(lastPing) > imaginePingEvery {
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			lastPing = time.Now()
		}

		_ = conn.SetReadDeadline(time.Now().Add(imagineRecvPoll))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				now := time.Now()
				if blocked(now, blockedGrace) {
					fail("blocked", 0, "blocked_no_final_image")
					return
				}
				if completed > 0 && now.Sub(lastActivity) > imagineIdleExit {
					lgr.Info("imagine socket idle, stopping", zap.Int("completed", completed))
					return
				}
				continue
			}
			if completed == 0 {
				lgr.Warn("imagine socket closed", zap.Error(err))
				fail("ws_closed", 0, err.Error())
			}
			return
		}
		lastActivity = time.Now()

		var msg imagineInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			lgr.Warn("imagine message decode failed", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "image":
			frame := classifyImagineFrame(msg.URL, msg.Blob)
			if frame == nil {
				continue
			}
			if frame.Stage == "medium" && firstMedium.IsZero() {
				firstMedium = time.Now()
			}
			if frame.IsFinal && !finals[frame.ImageID] {
				finals[frame.ImageID] = true
				completed++
			}
			if !emit(ImagineEvent{Image: frame}) {
				return
			}
		case "error":
			lgr.Warn("imagine socket error",
				zap.String("code", msg.ErrCode), zap.String("message", msg.ErrMsg))
			fail(msg.ErrCode, 0, msg.ErrMsg)
			return
		}

		if completed >= req.N {
			lgr.Info("imagine socket collected all finals", zap.Int("completed", completed))
			return
		}
		if blocked(time.Now(), blockedWindow) {
			fail("blocked", 0, "blocked_no_final_image")
			return
		}
	}
}
