package relaymode

import "strings"

func GetByPath(path string) int {
	switch {
	case strings.HasPrefix(path, "/v1/chat/completions"):
		return ChatCompletions
	case strings.HasPrefix(path, "/v1/images/generations"):
		return ImagesGenerations
	case strings.HasPrefix(path, "/v1/images/edits"):
		return ImagesEdits
	case strings.HasPrefix(path, "/v1/video"):
		return VideoGenerations
	case strings.HasPrefix(path, "/v1/admin/voice/token"):
		return VoiceToken
	default:
		return Unknown
	}
}

// Name returns the metric label for a relay mode.
func Name(mode int) string {
	switch mode {
	case ChatCompletions:
		return "chat_completions"
	case ImagesGenerations:
		return "images_generations"
	case ImagesEdits:
		return "images_edits"
	case VideoGenerations:
		return "video_generations"
	case VoiceToken:
		return "voice_token"
	default:
		return "unknown"
	}
}
