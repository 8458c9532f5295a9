// Package routing maps the public model ids onto upstream model names,
// request modes and pool policy. The table is static; everything the
// entrypoints need to route a request hangs off one Descriptor.
package routing

import (
	"sort"

	"github.com/fuchsia74/grok-api/model"
)

// Effort is the quota cost class of a model. Low-effort requests consume 1
// quota point, high-effort (expert/heavy reasoning) consume 4.
type Effort int

const (
	EffortLow  Effort = 1
	EffortHigh Effort = 4
)

// Kind separates the three generation families the gateway fronts.
type Kind int

const (
	KindChat Kind = iota
	KindImage
	KindVideo
)

// Descriptor is one public model's routing entry.
type Descriptor struct {
	// ID is the public, OpenAI-style model id.
	ID string
	// UpstreamModel is the modelName submitted to the upstream.
	UpstreamModel string
	// Mode rides in the chat payload's modelMode field; empty for models
	// the upstream routes without a mode.
	Mode string
	// Effort decides the per-request quota cost.
	Effort Effort
	// Kind selects the chat, image or video pipeline.
	Kind Kind
	// RequiresSuper restricts the model to super-pool credentials.
	RequiresSuper bool
	// RateLimitModel is the model name used when probing quota; defaults
	// to UpstreamModel when empty.
	RateLimitModel string
	// OwnedBy fills the /v1/models display metadata.
	OwnedBy string
	// Created is the epoch the model id was published, for /v1/models.
	Created int64
}

const ownerXAI = "xai"

// grok-4-1-thinking is the upstream's probe default; most descriptors probe
// with their own upstream model name instead.
var table = map[string]Descriptor{
	"grok-3-fast": {
		ID: "grok-3-fast", UpstreamModel: "grok-3", Mode: "MODEL_MODE_FAST",
		Effort: EffortLow, Kind: KindChat, OwnedBy: ownerXAI, Created: 1743465600,
	},
	"grok-4-fast": {
		ID: "grok-4-fast", UpstreamModel: "grok-4-mini-thinking-tahoe",
		Mode: "MODEL_MODE_GROK_4_MINI_THINKING", Effort: EffortLow, Kind: KindChat,
		OwnedBy: ownerXAI, Created: 1752192000,
	},
	"grok-4-fast-expert": {
		ID: "grok-4-fast-expert", UpstreamModel: "grok-4-mini-thinking-tahoe",
		Mode: "MODEL_MODE_EXPERT", Effort: EffortHigh, Kind: KindChat,
		OwnedBy: ownerXAI, Created: 1752192000,
	},
	"grok-4-expert": {
		ID: "grok-4-expert", UpstreamModel: "grok-4", Mode: "MODEL_MODE_EXPERT",
		Effort: EffortHigh, Kind: KindChat, OwnedBy: ownerXAI, Created: 1752192000,
	},
	"grok-4.1": {
		ID: "grok-4.1", UpstreamModel: "grok-4-1-non-thinking-w-tool",
		Mode: "MODEL_MODE_GROK_4_1", Effort: EffortLow, Kind: KindChat,
		OwnedBy: ownerXAI, Created: 1762992000,
	},
	"grok-4.1-thinking": {
		ID: "grok-4.1-thinking", UpstreamModel: "grok-4-1-thinking-1108b",
		Mode: "MODEL_MODE_AUTO", Effort: EffortLow, Kind: KindChat,
		OwnedBy: ownerXAI, Created: 1762992000,
	},
	"grok-4-heavy": {
		ID: "grok-4-heavy", UpstreamModel: "grok-4-heavy", Mode: "MODEL_MODE_HEAVY",
		Effort: EffortHigh, Kind: KindChat, RequiresSuper: true,
		OwnedBy: ownerXAI, Created: 1752192000,
	},
	"grok-imagine-1.0": {
		ID: "grok-imagine-1.0", UpstreamModel: "imagine",
		Effort: EffortLow, Kind: KindImage, RateLimitModel: "grok-3",
		OwnedBy: ownerXAI, Created: 1760486400,
	},
	"grok-imagine-0.9": {
		ID: "grok-imagine-0.9", UpstreamModel: "grok-3",
		Effort: EffortLow, Kind: KindVideo, OwnedBy: ownerXAI, Created: 1760486400,
	},
}

// Lookup returns the descriptor for a public model id.
func Lookup(modelID string) (Descriptor, bool) {
	d, ok := table[modelID]
	return d, ok
}

// IsKnown reports whether the public model id is served.
func IsKnown(modelID string) bool {
	_, ok := table[modelID]
	return ok
}

// All returns every descriptor sorted by public id, for /v1/models.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(table))
	for _, d := range table {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpstreamFor resolves the upstream model name and mode of a public id.
func UpstreamFor(modelID string) (upstreamModel, mode string, ok bool) {
	d, ok := table[modelID]
	if !ok {
		return "", "", false
	}
	return d.UpstreamModel, d.Mode, true
}

// EffortForModel returns the quota cost class; unknown models cost low.
func EffortForModel(modelID string) Effort {
	if d, ok := table[modelID]; ok {
		return d.Effort
	}
	return EffortLow
}

// IsImage reports whether the model routes to the image pipeline.
func IsImage(modelID string) bool {
	d, ok := table[modelID]
	return ok && d.Kind == KindImage
}

// IsVideo reports whether the model routes to the video pipeline.
func IsVideo(modelID string) bool {
	d, ok := table[modelID]
	return ok && d.Kind == KindVideo
}

// RateLimitModel is the model name sent to the upstream quota probe.
func RateLimitModel(modelID string) string {
	d, ok := table[modelID]
	if !ok {
		return modelID
	}
	if d.RateLimitModel != "" {
		return d.RateLimitModel
	}
	return d.UpstreamModel
}

// PoolCandidatesForModel lists the pools to draw credentials from, in
// preference order. Super-only models see just the super pool; everything
// else starts basic and falls back to super.
func PoolCandidatesForModel(modelID string) []string {
	if d, ok := table[modelID]; ok && d.RequiresSuper {
		return []string{model.PoolSuper}
	}
	return []string{model.PoolBasic, model.PoolSuper}
}

// PoolCandidatesForVideo prefers the super pool for renders that burn more
// upstream compute: 720p or anything longer than six seconds.
func PoolCandidatesForVideo(resolution string, videoLength int) []string {
	if resolution == "720p" || videoLength > 6 {
		return []string{model.PoolSuper, model.PoolBasic}
	}
	return []string{model.PoolBasic, model.PoolSuper}
}
