package controller

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok-api/batch"
	"github.com/fuchsia74/grok-api/common/config"
)

func batchRouter() *gin.Engine {
	engine := testEngine()
	engine.POST("/admin/tokens/refresh/async", StartUsageRefresh)
	engine.GET("/admin/batch/:task_id", GetBatchTask)
	engine.GET("/admin/batch/:task_id/stream", StreamBatchTask)
	engine.POST("/admin/batch/:task_id/cancel", CancelBatchTask)
	return engine
}

func TestStartBatchEmptySelection(t *testing.T) {
	openTestDB(t)
	seedTokens(t)
	engine := batchRouter()

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodPost, "/admin/tokens/refresh/async", nil))
	require.False(t, env.Success)
	assert.Equal(t, "no tokens to process", env.Message)
}

func TestStartBatchHonorsTokenLimit(t *testing.T) {
	openTestDB(t)
	seedTokens(t)
	engine := batchRouter()

	origLimit := config.UsageMaxTokens
	config.UsageMaxTokens = 2
	t.Cleanup(func() { config.UsageMaxTokens = origLimit })

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodPost, "/admin/tokens/refresh/async", map[string]any{
		"tokens": []string{tokenAlpha, tokenBeta, "gamma-0123456789abcdef0123456789"},
	}))
	require.False(t, env.Success)
	assert.Equal(t, "request holds 3 tokens, the endpoint accepts at most 2", env.Message)
}

func TestGetBatchTaskUnknown(t *testing.T) {
	engine := batchRouter()

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodGet, "/admin/batch/nope", nil))
	require.False(t, env.Success)
	assert.Contains(t, env.Message, "unknown task")
}

func TestGetAndCancelBatchTask(t *testing.T) {
	engine := batchRouter()
	task := batch.Default().Create(4)

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodGet, "/admin/batch/"+task.ID, nil))
	require.True(t, env.Success)

	var snap batch.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, task.ID, snap.TaskID)
	assert.Equal(t, batch.StatusRunning, snap.Status)
	assert.Equal(t, 4, snap.Total)

	env = decodeEnvelope(t, doJSON(t, engine, http.MethodPost, "/admin/batch/"+task.ID+"/cancel", nil))
	require.True(t, env.Success)
	assert.True(t, task.Cancelled())
}

func TestStreamFinishedTaskReplaysTerminalEvent(t *testing.T) {
	engine := batchRouter()
	task := batch.Default().Create(1)
	task.Record(true, "alpha-01...masked", nil, "")
	task.Finish(map[string]batch.ItemResult{"alpha-01...masked": {Ok: true}}, "")

	rec := doJSON(t, engine, http.MethodGet, "/admin/batch/"+task.ID+"/stream", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	body := rec.Body.String()
	assert.Contains(t, body, `"type":"snapshot"`)
	assert.Contains(t, body, `"type":"done"`)
	assert.Contains(t, body, `"status":"done"`)
}
