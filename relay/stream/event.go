// Package stream turns upstream conversation streams into OpenAI-shaped
// client responses. Each upstream line decodes into one tagged Event; the
// per-surface processors (chat, image, video) consume events and emit SSE
// chunks or collected envelopes.
package stream

import (
	"encoding/json"
	"sort"
	"strings"
)

// Event is one decoded upstream line. At most one of the payload fields is
// set; ResponseID and ModelHash are carried whenever present regardless of
// the payload kind.
type Event struct {
	ResponseID string
	ModelHash  string

	// Token is non-nil when the line carries a text delta, including the
	// empty one some models send as a keepalive.
	Token         *string
	ImageProgress *ImageProgress
	VideoProgress *VideoProgress
	ModelResponse *ModelResponse
}

// ImageProgress is one streamingImageGenerationResponse update.
type ImageProgress struct {
	ImageIndex int `json:"imageIndex"`
	Progress   int `json:"progress"`
}

// VideoProgress is one streamingVideoGenerationResponse update. The URL
// fields are only populated on the terminal (progress 100) update.
type VideoProgress struct {
	Progress          int    `json:"progress"`
	VideoURL          string `json:"videoUrl"`
	ThumbnailImageURL string `json:"thumbnailImageUrl"`
}

// ModelResponse is the final message of a conversation turn.
type ModelResponse struct {
	ResponseID string
	Message    string
	ImageURLs  []string
	ModelHash  string
}

type upstreamLine struct {
	Result struct {
		Response struct {
			Token      *string `json:"token"`
			ResponseID string  `json:"responseId"`
			LLMInfo    *struct {
				ModelHash string `json:"modelHash"`
			} `json:"llmInfo"`
			StreamingImageGenerationResponse *ImageProgress  `json:"streamingImageGenerationResponse"`
			StreamingVideoGenerationResponse *VideoProgress  `json:"streamingVideoGenerationResponse"`
			ModelResponse                    json.RawMessage `json:"modelResponse"`
		} `json:"response"`
	} `json:"result"`
}

// DecodeEvent parses one normalized upstream line. Lines that are not JSON
// objects report ok=false and are skipped by the processors.
func DecodeEvent(line string) (Event, bool) {
	var raw upstreamLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Event{}, false
	}

	resp := raw.Result.Response
	ev := Event{ResponseID: resp.ResponseID}
	if resp.LLMInfo != nil {
		ev.ModelHash = resp.LLMInfo.ModelHash
	}

	switch {
	case resp.StreamingImageGenerationResponse != nil:
		ev.ImageProgress = resp.StreamingImageGenerationResponse
	case resp.StreamingVideoGenerationResponse != nil:
		ev.VideoProgress = resp.StreamingVideoGenerationResponse
	case len(resp.ModelResponse) > 0 && string(resp.ModelResponse) != "null":
		ev.ModelResponse = decodeModelResponse(resp.ModelResponse)
	case resp.Token != nil:
		ev.Token = resp.Token
	}
	return ev, true
}

func decodeModelResponse(raw json.RawMessage) *ModelResponse {
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return &ModelResponse{}
	}

	mr := &ModelResponse{ImageURLs: collectImageURLs(tree)}
	if id, ok := tree["responseId"].(string); ok {
		mr.ResponseID = id
	}
	if msg, ok := tree["message"].(string); ok {
		mr.Message = msg
	}
	if meta, ok := tree["metadata"].(map[string]any); ok {
		if llm, ok := meta["llm_info"].(map[string]any); ok {
			if hash, ok := llm["modelHash"].(string); ok {
				mr.ModelHash = hash
			}
		}
	}
	return mr
}

// imageURLKeys are the field names that carry generated image links
// anywhere inside a model response.
var imageURLKeys = map[string]bool{
	"generatedImageUrls": true,
	"imageUrls":          true,
	"imageURLs":          true,
}

// collectImageURLs walks the response tree and gathers image links,
// deduplicated. Object keys are visited in sorted order so the result is
// stable across runs.
func collectImageURLs(root any) []string {
	var urls []string
	seen := make(map[string]bool)

	add := func(url string) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		urls = append(urls, url)
	}

	var walk func(value any)
	walk = func(value any) {
		switch v := value.(type) {
		case map[string]any:
			keys := make([]string, 0, len(v))
			for key := range v {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				item := v[key]
				if imageURLKeys[key] {
					switch urlVal := item.(type) {
					case []any:
						for _, u := range urlVal {
							if s, ok := u.(string); ok {
								add(s)
							}
						}
					case string:
						add(urlVal)
					}
					continue
				}
				walk(item)
			}
		case []any:
			for _, item := range v {
				walk(item)
			}
		}
	}
	walk(root)
	return urls
}

// NormalizeLine trims SSE framing from one upstream line. ok is false for
// lines the processors must skip (blank lines and the [DONE] sentinel).
func NormalizeLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if line == "" || line == "[DONE]" {
		return "", false
	}
	return line, true
}
