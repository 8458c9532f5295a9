package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens(""))
	assert.Positive(t, CountTokens("hello world, this is a prompt"))

	short := CountTokens("hi")
	long := CountTokens("a considerably longer stretch of text that must cost more tokens than a greeting")
	assert.Greater(t, long, short)
}

func TestEstimateUsage(t *testing.T) {
	usage := EstimateUsage("what is the answer", "the answer is forty two")
	assert.Positive(t, usage.PromptTokens)
	assert.Positive(t, usage.CompletionTokens)
	assert.Equal(t, usage.PromptTokens+usage.CompletionTokens, usage.TotalTokens)

	empty := EstimateUsage("", "")
	assert.Zero(t, empty.TotalTokens)
}
