package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCheckSpecs(t *testing.T) {
	cfg := harnessConfig{
		APIBase:     "http://localhost:3000",
		ChatModels:  []string{"grok-4-fast", "grok-4.1"},
		ImageModels: []string{"grok-imagine-1.0"},
		Variants:    checkVariants,
	}

	specs := buildCheckSpecs(cfg)
	assert.Equal(t,
		[]string{gatewayTarget, "grok-4-fast", "grok-4.1", "grok-imagine-1.0"},
		sweepTargets(specs),
	)

	var catalog *checkSpec
	chatChecks := 0
	videoChecks := 0
	for i := range specs {
		switch specs[i].Variant {
		case "models_list":
			catalog = &specs[i]
		case "chat_stream_false", "chat_stream_true":
			chatChecks++
		case "video_generation":
			videoChecks++
		}
	}

	require.NotNil(t, catalog)
	assert.Equal(t, []string{"grok-4-fast", "grok-4.1", "grok-imagine-1.0"}, catalog.ExpectModels)
	assert.Equal(t, 4, chatChecks)
	assert.Zero(t, videoChecks, "video checks only run when video models are configured")
}

func TestBuildReportCountsFailures(t *testing.T) {
	targets := []string{gatewayTarget, "grok-4-fast"}
	results := []checkResult{
		{Target: gatewayTarget, Variant: "health", Label: "Health", Success: true},
		{Target: "grok-4-fast", Variant: "chat_stream_false", Label: "Chat (stream=false)", ErrorReason: "status 502"},
	}

	rep := buildReport(targets, checkVariants, results)
	assert.Equal(t, 2, rep.totalChecks)
	assert.Equal(t, 1, rep.failedCount)

	failures := gatherFailures(rep)
	require.Len(t, failures, 1)
	assert.Equal(t, "grok-4-fast", failures[0].Target)
}
