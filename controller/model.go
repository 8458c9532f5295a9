package controller

import (
	"fmt"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	relaymodel "github.com/fuchsia74/grok-api/relay/model"
	"github.com/fuchsia74/grok-api/relay/routing"
)

// https://platform.openai.com/docs/api-reference/models/list

type OpenAIModelPermission struct {
	Id                 string  `json:"id"`
	Object             string  `json:"object"`
	Created            int     `json:"created"`
	AllowCreateEngine  bool    `json:"allow_create_engine"`
	AllowSampling      bool    `json:"allow_sampling"`
	AllowLogprobs      bool    `json:"allow_logprobs"`
	AllowSearchIndices bool    `json:"allow_search_indices"`
	AllowView          bool    `json:"allow_view"`
	AllowFineTuning    bool    `json:"allow_fine_tuning"`
	Organization       string  `json:"organization"`
	Group              *string `json:"group"`
	IsBlocking         bool    `json:"is_blocking"`
}

type OpenAIModels struct {
	Id      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	// OwnedBy is the publishing organization of the underlying model.
	OwnedBy    string                  `json:"owned_by"`
	Permission []OpenAIModelPermission `json:"permission"`
	Root       string                  `json:"root"`
	Parent     *string                 `json:"parent"`
}

var allModels []OpenAIModels
var modelsMap map[string]OpenAIModels

func init() {
	// The permission rows exist for SDK compatibility only; the gateway has
	// no per-model ACLs.
	permission := []OpenAIModelPermission{{
		Id:                 "modelperm-LwHkVFn8AcMItP432fKKDIKJ",
		Object:             "model_permission",
		Created:            1626777600,
		AllowCreateEngine:  true,
		AllowSampling:      true,
		AllowLogprobs:      true,
		AllowSearchIndices: false,
		AllowView:          true,
		AllowFineTuning:    false,
		Organization:       "*",
		Group:              nil,
		IsBlocking:         false,
	}}

	descriptors := routing.All()
	allModels = make([]OpenAIModels, 0, len(descriptors))
	modelsMap = make(map[string]OpenAIModels, len(descriptors))
	for _, d := range descriptors {
		m := OpenAIModels{
			Id:         d.ID,
			Object:     "model",
			Created:    d.Created,
			OwnedBy:    d.OwnedBy,
			Permission: permission,
			Root:       d.ID,
			Parent:     nil,
		}
		allModels = append(allModels, m)
		modelsMap[d.ID] = m
	}
}

// ListModels serves GET /v1/models. The routing table is static, so every
// caller sees the same list.
func ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   allModels,
	})
}

// RetrieveModel serves GET /v1/models/:model.
func RetrieveModel(c *gin.Context) {
	modelId := c.Param("model")
	if m, ok := modelsMap[modelId]; ok {
		c.JSON(http.StatusOK, m)
		return
	}
	msg := fmt.Sprintf("The model '%s' does not exist", modelId)
	c.JSON(http.StatusNotFound, gin.H{
		"error": relaymodel.Error{
			Message:  msg,
			Type:     "invalid_request_error",
			Param:    "model",
			Code:     "model_not_found",
			RawError: errors.New(msg),
		},
	})
}
