package model

// Accepted response_format values for image endpoints.
const (
	ImageFormatURL     = "url"
	ImageFormatBase64  = "base64"
	ImageFormatB64JSON = "b64_json"
)

// ValidImageResponseFormat reports whether format is an accepted
// response_format value.
func ValidImageResponseFormat(format string) bool {
	switch format {
	case ImageFormatURL, ImageFormatBase64, ImageFormatB64JSON:
		return true
	}
	return false
}

// ImageResponseField maps a response_format to the JSON field that carries
// the image payload in data entries and stream events.
func ImageResponseField(format string) string {
	switch format {
	case ImageFormatURL:
		return "url"
	case ImageFormatBase64:
		return "base64"
	default:
		return "b64_json"
	}
}

// ImageRequest is the OpenAI images/generations body. N is a pointer so an
// explicit 0 can be rejected instead of silently defaulting.
type ImageRequest struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model,omitempty"`
	N              *int     `json:"n,omitempty"`
	Size           string   `json:"size,omitempty"`
	Quality        string   `json:"quality,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Style          string   `json:"style,omitempty"`
	Stream         FlexBool `json:"stream,omitempty"`
}

// ImageEditRequest carries the non-file multipart fields of an image edit
// call. The uploaded files are read separately by the entrypoint.
type ImageEditRequest struct {
	Prompt         string `form:"prompt"`
	Model          string `form:"model"`
	N              *int   `form:"n"`
	Size           string `form:"size"`
	Quality        string `form:"quality"`
	ResponseFormat string `form:"response_format"`
	Style          string `form:"style"`
	Stream         bool   `form:"stream"`
}

// ImageData holds one generated image under whichever field the request's
// response_format selected. Exactly one field is set.
type ImageData struct {
	Url     string `json:"url,omitempty"`
	Base64  string `json:"base64,omitempty"`
	B64Json string `json:"b64_json,omitempty"`
}

// NewImageData stores value under the named response field.
func NewImageData(field, value string) ImageData {
	switch field {
	case "url":
		return ImageData{Url: value}
	case "base64":
		return ImageData{Base64: value}
	default:
		return ImageData{B64Json: value}
	}
}

// ImageResponse is the non-streaming images envelope.
type ImageResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
	Usage   ImageUsage  `json:"usage"`
}
