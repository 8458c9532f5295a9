package relaymode

import "testing"

func TestGetByPath(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"/v1/chat/completions", ChatCompletions},
		{"/v1/images/generations", ImagesGenerations},
		{"/v1/images/edits", ImagesEdits},
		{"/v1/video/start", VideoGenerations},
		{"/v1/video/sse", VideoGenerations},
		{"/v1/video/stop", VideoGenerations},
		{"/v1/admin/voice/token", VoiceToken},
		{"/v1/models", Unknown},
		{"/v1/embeddings", Unknown},
	}
	for _, c := range cases {
		if got := GetByPath(c.path); got != c.want {
			t.Errorf("%s: got %d, want %d", c.path, got, c.want)
		}
	}
}
