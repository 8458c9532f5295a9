package batch

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/render"
)

// keepaliveInterval paces ping frames so idle proxies keep the SSE connection
// open while a long batch makes no progress.
const keepaliveInterval = 15 * time.Second

type pingFrame struct {
	Type string `json:"type"`
}

// ServeSSE streams a task's progress to one subscriber. The subscriber first
// receives a snapshot of the current counters; a task that already finished
// gets the stored terminal event replayed immediately and the stream closes.
// Otherwise events are forwarded until the terminal event or until the client
// disconnects.
func ServeSSE(c *gin.Context, task *Task) {
	common.SetEventStreamHeaders(c)

	ch := task.Attach()
	defer task.Detach(ch)

	if err := render.ObjectData(c, task.SnapshotEvent()); err != nil {
		return
	}
	// The terminal check runs after Attach, so a finish racing the
	// subscription lands either in the stored event or in the queue; the
	// queue is never read on the replay path, so the client sees it once.
	if final := task.FinalEvent(); final != nil {
		_ = render.ObjectData(c, final)
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := render.ObjectData(c, ev); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		case <-keepalive.C:
			if err := render.ObjectData(c, pingFrame{Type: EventPing}); err != nil {
				return
			}
		}
	}
}
