package grok

import (
	"context"
)

const rateLimitsEndpoint = GrokOrigin + "/rest/rate-limits"

// RateLimitSnapshot is the upstream quota report for one token and model.
// remainingQueries drives pool accounting; the token fields exist for the
// admin status view.
type RateLimitSnapshot struct {
	WindowSizeSeconds    int              `json:"windowSizeSeconds"`
	TotalQueries         int              `json:"totalQueries"`
	RemainingQueries     int              `json:"remainingQueries"`
	TotalTokens          int              `json:"totalTokens"`
	RemainingTokens      int              `json:"remainingTokens"`
	LowEffortRateLimits  *RateLimitDetail `json:"lowEffortRateLimits,omitempty"`
	HighEffortRateLimits *RateLimitDetail `json:"highEffortRateLimits,omitempty"`
}

// RateLimitDetail splits the quota by reasoning effort.
type RateLimitDetail struct {
	RemainingQueries int `json:"remainingQueries"`
	TotalQueries     int `json:"totalQueries"`
}

// QueryRateLimits probes the remaining quota of a token against the given
// upstream model. Probes share a process-wide concurrency gate.
func QueryRateLimits(ctx context.Context, token, modelName string) (*RateLimitSnapshot, error) {
	release, err := acquire(ctx, usageSem)
	if err != nil {
		return nil, err
	}
	defer release()

	payload := map[string]string{
		"requestKind": "DEFAULT",
		"modelName":   modelName,
	}
	var out RateLimitSnapshot
	if err := postJSON(ctx, impatientClient(), rateLimitsEndpoint, token, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
