package stream

import (
	"sync"

	"github.com/Laisky/zap"
	"github.com/pkoukk/tiktoken-go"

	"github.com/fuchsia74/grok-api/common/logger"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// tokenEncoder lazily loads the cl100k_base encoding shared by every model
// the gateway fronts. Loading may hit the network once; offline deployments
// should point TIKTOKEN_CACHE_DIR at a seeded cache.
func tokenEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Logger.Warn("load cl100k_base encoding, falling back to byte estimate",
				zap.Error(err))
			return
		}
		encoder = enc
	})
	return encoder
}

// CountTokens estimates the token footprint of text. Without an encoder a
// byte-ratio approximation stands in.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := tokenEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return int(float64(len(text)) * 0.38)
}

// EstimateUsage fills a usage block from the flattened prompt and the
// collected completion. The upstream reports no counts of its own.
func EstimateUsage(prompt, completion string) relaymodel.Usage {
	promptTokens := CountTokens(prompt)
	completionTokens := CountTokens(completion)
	return relaymodel.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
