package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok-api/model"
)

func tracingRouter() *gin.Engine {
	engine := testEngine()
	engine.GET("/admin/traces/:trace_id", GetTraceByTraceId)
	return engine
}

func TestGetTraceByTraceId(t *testing.T) {
	openTestDB(t)
	engine := tracingRouter()

	trace, err := model.CreateTrace(context.Background(), "trace-123", "/v1/chat/completions", http.MethodPost, 512)
	require.NoError(t, err)
	require.NoError(t, model.UpdateTraceStatus(context.Background(), trace.TraceId, http.StatusOK))
	require.NoError(t, model.UpdateTraceRelayInfo(context.Background(), trace.TraceId, "grok-4-fast", 7, 2))

	env := decodeEnvelope(t, doJSON(t, engine, http.MethodGet, "/admin/traces/trace-123", nil))
	require.True(t, env.Success)

	var data struct {
		TraceId    string                 `json:"trace_id"`
		URL        string                 `json:"url"`
		Method     string                 `json:"method"`
		Model      string                 `json:"model"`
		TokenId    int                    `json:"token_id"`
		Attempts   int                    `json:"attempts"`
		Status     int                    `json:"status"`
		Timestamps *model.TraceTimestamps `json:"timestamps"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "trace-123", data.TraceId)
	assert.Equal(t, "/v1/chat/completions", data.URL)
	assert.Equal(t, http.MethodPost, data.Method)
	assert.Equal(t, "grok-4-fast", data.Model)
	assert.Equal(t, 7, data.TokenId)
	assert.Equal(t, 2, data.Attempts)
	assert.Equal(t, http.StatusOK, data.Status)
	require.NotNil(t, data.Timestamps)
	require.NotNil(t, data.Timestamps.RequestReceived)
	assert.Positive(t, *data.Timestamps.RequestReceived)
}

func TestGetTraceByTraceIdNotFound(t *testing.T) {
	openTestDB(t)
	engine := tracingRouter()

	rec := doJSON(t, engine, http.MethodGet, "/admin/traces/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "trace not found")
}
