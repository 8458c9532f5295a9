package controller

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelRouter() *gin.Engine {
	engine := testEngine()
	engine.GET("/v1/models", ListModels)
	engine.GET("/v1/models/:model", RetrieveModel)
	return engine
}

func TestListModels(t *testing.T) {
	engine := modelRouter()

	rec := doJSON(t, engine, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Object string         `json:"object"`
		Data   []OpenAIModels `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "list", payload.Object)
	require.NotEmpty(t, payload.Data)

	ids := make(map[string]bool, len(payload.Data))
	for _, m := range payload.Data {
		assert.Equal(t, "model", m.Object)
		ids[m.Id] = true
	}
	assert.True(t, ids["grok-4-fast"])
	assert.True(t, ids["grok-imagine-1.0"])
}

func TestRetrieveModel(t *testing.T) {
	engine := modelRouter()

	rec := doJSON(t, engine, http.MethodGet, "/v1/models/grok-4-fast", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var m OpenAIModels
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "grok-4-fast", m.Id)
	assert.Equal(t, "grok-4-fast", m.Root)

	rec = doJSON(t, engine, http.MethodGet, "/v1/models/gpt-99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "model_not_found")
}
