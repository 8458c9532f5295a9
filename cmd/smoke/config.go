package main

import (
	"strings"

	"github.com/Laisky/errors/v2"

	cfg "github.com/fuchsia74/grok-api/common/config"
)

// harnessConfig is the sweep plan derived from the environment.
type harnessConfig struct {
	APIBase     string
	APIKey      string
	ChatModels  []string
	ImageModels []string
	VideoModels []string
	Variants    []checkVariant
}

func loadConfig() (harnessConfig, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.SmokeAPIBase), "/")
	if base == "" {
		return harnessConfig{}, errors.New("SMOKE_API_BASE must be set")
	}

	variants, err := parseVariants(cfg.SmokeVariants)
	if err != nil {
		return harnessConfig{}, errors.Wrap(err, "parse variants")
	}

	return harnessConfig{
		APIBase:     base,
		APIKey:      strings.TrimSpace(cfg.SmokeAPIKey),
		ChatModels:  parseList(cfg.SmokeChatModels),
		ImageModels: parseList(cfg.SmokeImageModels),
		VideoModels: parseList(cfg.SmokeVideoModels),
		Variants:    variants,
	}, nil
}

// parseList tokenizes a comma, semicolon or whitespace separated model list.
func parseList(raw string) []string {
	normalized := raw
	for _, sep := range []string{",", ";", "\n", "\r"} {
		normalized = strings.ReplaceAll(normalized, sep, ",")
	}

	var out []string
	for _, part := range strings.Split(normalized, ",") {
		if candidate := strings.TrimSpace(part); candidate != "" {
			out = append(out, candidate)
		}
	}
	return out
}

// parseVariants narrows the sweep to the named checks; an empty selection
// keeps all of them. Kind names (chat, image, video, gateway) select groups.
func parseVariants(raw string) ([]checkVariant, error) {
	names := parseList(raw)
	if len(names) == 0 {
		return checkVariants, nil
	}

	selected := make([]checkVariant, 0, len(checkVariants))
	seen := make(map[string]bool, len(checkVariants))
	for _, name := range names {
		matched := false
		for _, variant := range checkVariants {
			if strings.EqualFold(name, variant.Key) || strings.EqualFold(name, string(variant.Kind)) {
				if !seen[variant.Key] {
					selected = append(selected, variant)
					seen[variant.Key] = true
				}
				matched = true
			}
		}
		if !matched {
			return nil, errors.Errorf("unknown check %q", name)
		}
	}

	if len(selected) == 0 {
		return nil, errors.New("no checks selected")
	}
	return selected, nil
}

// modelsFor returns the sweep targets of a variant; gateway checks run once.
func (c harnessConfig) modelsFor(kind checkKind) []string {
	switch kind {
	case kindChat:
		return c.ChatModels
	case kindImage:
		return c.ImageModels
	case kindVideo:
		return c.VideoModels
	default:
		return []string{gatewayTarget}
	}
}
