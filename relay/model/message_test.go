package model

import (
	"encoding/json"
	"testing"
)

// Detail has no upstream knob but must survive parsing so request logs
// stay faithful to what the client sent.
func TestParseContent_ImageDetailPreserved(t *testing.T) {
	m := Message{
		Role: "user",
		Content: []any{
			map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url":    "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAAB",
					"detail": "low",
				},
			},
		},
	}

	parts := m.ParseContent()
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0].ImageURL == nil {
		t.Fatalf("expected image URL part")
	}
	if parts[0].ImageURL.Detail != "low" {
		t.Fatalf("expected detail 'low', got '%s'", parts[0].ImageURL.Detail)
	}
}

func TestParseContent_MixedParts(t *testing.T) {
	m := Message{
		Role: "user",
		Content: []any{
			map[string]any{"type": "text", "text": "describe this"},
			map[string]any{
				"type":        "input_audio",
				"input_audio": map[string]any{"data": "UklGRg==", "format": "wav"},
			},
			map[string]any{
				"type": "file",
				"file": map[string]any{"file_data": "data:application/pdf;base64,JVBERi0=", "filename": "doc.pdf"},
			},
		},
	}

	parts := m.ParseContent()
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if parts[0].Text == nil || *parts[0].Text != "describe this" {
		t.Fatalf("unexpected text part: %+v", parts[0].Text)
	}
	if parts[1].InputAudio == nil || parts[1].InputAudio.Format != "wav" {
		t.Fatalf("unexpected audio part: %+v", parts[1].InputAudio)
	}
	if parts[2].File == nil || parts[2].File.Filename != "doc.pdf" {
		t.Fatalf("unexpected file part: %+v", parts[2].File)
	}
}

func TestStringContent(t *testing.T) {
	m := Message{Role: "user", Content: "plain"}
	if got := m.StringContent(); got != "plain" {
		t.Fatalf("unexpected string content: %s", got)
	}
	if !m.IsStringContent() {
		t.Fatalf("expected string content")
	}

	m = Message{
		Role: "user",
		Content: []any{
			map[string]any{"type": "text", "text": "first "},
			map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": "https://example.com/a.png"},
			},
			map[string]any{"type": "text", "text": "second"},
		},
	}
	if got := m.StringContent(); got != "first second" {
		t.Fatalf("expected non-text parts skipped, got: %s", got)
	}
	if m.IsStringContent() {
		t.Fatalf("expected list content")
	}
}

// The stream delta reuses Message; the role chunk must carry an explicit
// empty content and the finish chunk must serialize as an empty object.
func TestMessageDeltaShapes(t *testing.T) {
	role, err := json.Marshal(Message{Role: "assistant", Content: ""})
	if err != nil {
		t.Fatal(err)
	}
	if string(role) != `{"role":"assistant","content":""}` {
		t.Fatalf("unexpected role delta: %s", role)
	}

	content, err := json.Marshal(Message{Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != `{"content":"hi"}` {
		t.Fatalf("unexpected content delta: %s", content)
	}

	finish, err := json.Marshal(Message{})
	if err != nil {
		t.Fatal(err)
	}
	if string(finish) != `{}` {
		t.Fatalf("unexpected finish delta: %s", finish)
	}
}
