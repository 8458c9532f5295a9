package model

import "strings"

const (
	ContentTypeText       = "text"
	ContentTypeImageURL   = "image_url"
	ContentTypeInputAudio = "input_audio"
	ContentTypeFile       = "file"
)

// Message is one OpenAI chat message. Content is either a plain string or a
// list of typed content parts.
type Message struct {
	Role    string  `json:"role,omitempty"`
	Content any     `json:"content,omitempty"`
	Name    *string `json:"name,omitempty"`
}

type ImageURL struct {
	Url string `json:"url,omitempty"`
	// Detail is accepted for OpenAI compatibility; the upstream has no
	// equivalent knob, so it only survives into logs.
	Detail string `json:"detail,omitempty"`
}

type InputAudio struct {
	// Data is base64 encoded audio
	Data string `json:"data,omitempty"`
	// Format of the audio, e.g. wav, mp3
	Format string `json:"format,omitempty"`
}

// MessageFile is the OpenAI file content part; FileData carries a data URI.
type MessageFile struct {
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type MessageContent struct {
	Type       string       `json:"type,omitempty"`
	Text       *string      `json:"text,omitempty"`
	ImageURL   *ImageURL    `json:"image_url,omitempty"`
	InputAudio *InputAudio  `json:"input_audio,omitempty"`
	File       *MessageFile `json:"file,omitempty"`
}

func (m Message) IsStringContent() bool {
	_, ok := m.Content.(string)
	return ok
}

// StringContent flattens the message content into plain text. Non-text parts
// are skipped.
func (m Message) StringContent() string {
	content, ok := m.Content.(string)
	if ok {
		return content
	}

	contentList, ok := m.Content.([]any)
	if !ok {
		return ""
	}

	var sb strings.Builder
	for _, contentItem := range contentList {
		contentMap, ok := contentItem.(map[string]any)
		if !ok {
			continue
		}
		if contentMap["type"] == ContentTypeText {
			if subStr, ok := contentMap["text"].(string); ok {
				sb.WriteString(subStr)
			}
		}
	}
	return sb.String()
}

// ParseContent normalizes the content field into typed parts.
func (m Message) ParseContent() []MessageContent {
	var contentList []MessageContent
	content, ok := m.Content.(string)
	if ok {
		contentList = append(contentList, MessageContent{
			Type: ContentTypeText,
			Text: &content,
		})
		return contentList
	}

	anyList, ok := m.Content.([]any)
	if !ok {
		return contentList
	}

	for _, contentItem := range anyList {
		contentMap, ok := contentItem.(map[string]any)
		if !ok {
			continue
		}
		switch contentMap["type"] {
		case ContentTypeText:
			if subStr, ok := contentMap["text"].(string); ok {
				contentList = append(contentList, MessageContent{
					Type: ContentTypeText,
					Text: &subStr,
				})
			}
		case ContentTypeImageURL:
			if subObj, ok := contentMap["image_url"].(map[string]any); ok {
				detail, _ := subObj["detail"].(string)
				url, _ := subObj["url"].(string)
				contentList = append(contentList, MessageContent{
					Type: ContentTypeImageURL,
					ImageURL: &ImageURL{
						Url:    url,
						Detail: detail,
					},
				})
			}
		case ContentTypeInputAudio:
			if subObj, ok := contentMap["input_audio"].(map[string]any); ok {
				data, _ := subObj["data"].(string)
				format, _ := subObj["format"].(string)
				contentList = append(contentList, MessageContent{
					Type: ContentTypeInputAudio,
					InputAudio: &InputAudio{
						Data:   data,
						Format: format,
					},
				})
			}
		case ContentTypeFile:
			if subObj, ok := contentMap["file"].(map[string]any); ok {
				fileData, _ := subObj["file_data"].(string)
				filename, _ := subObj["filename"].(string)
				contentList = append(contentList, MessageContent{
					Type: ContentTypeFile,
					File: &MessageFile{
						FileData: fileData,
						Filename: filename,
					},
				})
			}
		}
	}
	return contentList
}
