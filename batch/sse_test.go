package batch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// sseFrames decodes every data frame of a recorded SSE body.
func sseFrames(t *testing.T, raw string) []Event {
	t.Helper()
	var frames []Event
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		frames = append(frames, ev)
	}
	return frames
}

func newSSETestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/admin/batch/x/stream", nil)
	return c, rec
}

func TestServeSSEReplaysFinishedTask(t *testing.T) {
	task := NewRegistry().Create(2)
	task.Record(true, "a", nil, "")
	task.Record(false, "b", nil, "boom")
	task.Finish(map[string]string{"note": "all done"}, "")

	c, rec := newSSETestContext(t)
	ServeSSE(c, task)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, EventSnapshot, frames[0].Type)
	assert.Equal(t, StatusDone, frames[0].Status)
	assert.Equal(t, task.ID, frames[0].TaskID)
	assert.Equal(t, 2, frames[0].Processed)
	assert.Equal(t, EventDone, frames[1].Type)
	assert.Equal(t, 1, frames[1].Ok)
	assert.Equal(t, 1, frames[1].Fail)
	assert.NotNil(t, frames[1].Result)
}

func TestServeSSEReplaysCancelledTask(t *testing.T) {
	task := NewRegistry().Create(3)
	task.Record(true, "", nil, "")
	task.Cancel()
	task.FinishCancelled()

	c, rec := newSSETestContext(t)
	ServeSSE(c, task)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, StatusCancelled, frames[0].Status)
	assert.Equal(t, EventCancelled, frames[1].Type)
	assert.Equal(t, 1, frames[1].Processed)
}

func TestServeSSELiveStream(t *testing.T) {
	task := NewRegistry().Create(1)

	go func() {
		time.Sleep(30 * time.Millisecond)
		task.Record(true, "tok", nil, "")
		task.Finish(nil, "")
	}()

	c, rec := newSSETestContext(t)
	ServeSSE(c, task)

	frames := sseFrames(t, rec.Body.String())
	require.GreaterOrEqual(t, len(frames), 2)
	assert.Equal(t, EventSnapshot, frames[0].Type)
	assert.Equal(t, StatusRunning, frames[0].Status)

	last := frames[len(frames)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, 1, last.Processed)
	assert.Equal(t, 1, last.Ok)
	if len(frames) == 3 {
		assert.Equal(t, EventProgress, frames[1].Type)
	}

	task.mu.Lock()
	subs := len(task.subs)
	task.mu.Unlock()
	assert.Equal(t, 0, subs)
}

func TestServeSSEClientDisconnect(t *testing.T) {
	task := NewRegistry().Create(1)

	c, rec := newSSETestContext(t)
	ctx, cancel := context.WithCancel(c.Request.Context())
	c.Request = c.Request.WithContext(ctx)

	finished := make(chan struct{})
	go func() {
		ServeSSE(c, task)
		close(finished)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeSSE did not return after the client went away")
	}

	frames := sseFrames(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, EventSnapshot, frames[0].Type)

	task.mu.Lock()
	subs := len(task.subs)
	task.mu.Unlock()
	assert.Equal(t, 0, subs)
}
