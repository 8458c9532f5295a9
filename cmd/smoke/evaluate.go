package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// evaluateCheck inspects a non-streaming response and validates the expected shape.
func evaluateCheck(spec checkSpec, statusCode int, body []byte) (bool, string) {
	if statusCode < 200 || statusCode >= 300 {
		return false, fmt.Sprintf("status %d: %s", statusCode, snippet(body))
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Sprintf("malformed JSON response: %v", err)
	}

	if errVal, ok := payload["error"]; ok && isMeaningfulErrorValue(errVal) {
		return false, snippet(body)
	}

	switch spec.Kind {
	case kindGateway:
		if spec.Variant == "models_list" {
			return evaluateModelCatalog(payload, spec.ExpectModels)
		}
		if stringValue(payload, "status") != "ok" {
			return false, snippet(body)
		}
		return true, ""
	case kindChat, kindVideo:
		return evaluateCompletion(payload, body)
	case kindImage:
		return evaluateImageResponse(payload)
	default:
		return true, ""
	}
}

// evaluateModelCatalog requires the OpenAI list envelope and every model the
// sweep is configured to exercise.
func evaluateModelCatalog(payload map[string]any, expected []string) (bool, string) {
	if stringValue(payload, "object") != "list" {
		return false, "catalog missing list envelope"
	}

	data, ok := payload["data"].([]any)
	if !ok || len(data) == 0 {
		return false, "catalog holds no models"
	}

	served := make(map[string]bool, len(data))
	for _, entry := range data {
		if entryMap, ok := entry.(map[string]any); ok {
			served[stringValue(entryMap, "id")] = true
		}
	}

	var missing []string
	for _, id := range expected {
		if !served[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return false, "catalog missing " + strings.Join(missing, ", ")
	}

	return true, ""
}

// evaluateCompletion accepts any chat completion whose first choice carries
// content. Video generations resolve to the same shape with the asset link in
// the message body.
func evaluateCompletion(payload map[string]any, body []byte) (bool, string) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return false, "response missing choices"
	}

	for _, choice := range choices {
		choiceMap, ok := choice.(map[string]any)
		if !ok {
			continue
		}
		if message, ok := choiceMap["message"].(map[string]any); ok {
			if content, ok := message["content"].(string); ok && strings.TrimSpace(content) != "" {
				return true, ""
			}
		}
	}

	return false, "completion content empty: " + snippet(body)
}

func evaluateImageResponse(payload map[string]any) (bool, string) {
	data, ok := payload["data"].([]any)
	if !ok || len(data) == 0 {
		return false, "response missing image data"
	}

	for _, entry := range data {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if stringValue(entryMap, "url") != "" ||
			stringValue(entryMap, "b64_json") != "" ||
			stringValue(entryMap, "base64") != "" {
			return true, ""
		}
	}

	return false, "image entries carry neither url nor payload"
}

// evaluateStreamCheck validates streaming SSE payloads for delta content.
func evaluateStreamCheck(spec checkSpec, statusCode int, data []byte) (bool, string) {
	if statusCode < 200 || statusCode >= 300 {
		return false, fmt.Sprintf("status %d: %s", statusCode, snippet(data))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return false, "empty stream"
	}

	var (
		hasPayload bool
		hasContent bool
	)
	for _, rawLine := range bytes.Split(trimmed, []byte("\n")) {
		line := bytes.TrimSpace(rawLine)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}

		payload := bytes.TrimSpace(line[len("data:"):])
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}

		hasPayload = true
		var obj map[string]any
		if err := json.Unmarshal(payload, &obj); err != nil {
			continue
		}
		if errVal, ok := obj["error"]; ok && isMeaningfulErrorValue(errVal) {
			return false, snippet(payload)
		}
		if streamChunkHasContent(obj) {
			hasContent = true
		}
	}

	if !hasPayload {
		return false, "empty stream payload"
	}

	lower := bytes.ToLower(trimmed)
	if bytes.Contains(lower, []byte("\"error\"")) && !bytes.Contains(lower, []byte("\"error\":null")) {
		return false, snippet(trimmed)
	}

	if (spec.Kind == kindChat || spec.Kind == kindVideo) && !hasContent {
		return false, "stream carried no delta content"
	}

	return true, ""
}

// streamChunkHasContent reports whether a chunk contributes completion text.
func streamChunkHasContent(obj map[string]any) bool {
	choices, ok := obj["choices"].([]any)
	if !ok {
		return false
	}
	for _, choice := range choices {
		choiceMap, ok := choice.(map[string]any)
		if !ok {
			continue
		}
		if delta, ok := choiceMap["delta"].(map[string]any); ok {
			if content, ok := delta["content"].(string); ok && content != "" {
				return true
			}
		}
		if message, ok := choiceMap["message"].(map[string]any); ok {
			if content, ok := message["content"].(string); ok && content != "" {
				return true
			}
		}
	}
	return false
}

func stringValue(data map[string]any, key string) string {
	if raw, ok := data[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

func isMeaningfulErrorValue(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case map[string]any:
		for _, nested := range v {
			if isMeaningfulErrorValue(nested) {
				return true
			}
		}
		return false
	case []any:
		for _, nested := range v {
			if isMeaningfulErrorValue(nested) {
				return true
			}
		}
		return false
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return true
	}
}
