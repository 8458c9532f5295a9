package model

// videoRatioAliases folds the pixel-dimension spellings clients send onto
// the ratio names the upstream expects.
var videoRatioAliases = map[string]string{
	"1280x720":  "16:9",
	"720x1280":  "9:16",
	"1792x1024": "3:2",
	"1024x1792": "2:3",
	"1024x1024": "1:1",
	"16:9":      "16:9",
	"9:16":      "9:16",
	"3:2":       "3:2",
	"2:3":       "2:3",
	"1:1":       "1:1",
}

// NormalizeVideoAspectRatio maps value onto an upstream aspect ratio name.
// ok is false when value is not a recognized spelling.
func NormalizeVideoAspectRatio(value string) (ratio string, ok bool) {
	ratio, ok = videoRatioAliases[value]
	return ratio, ok
}

// ValidVideoLength reports whether length is an accepted clip duration in
// seconds.
func ValidVideoLength(length int) bool {
	switch length {
	case 6, 10, 15:
		return true
	}
	return false
}

func ValidVideoResolution(name string) bool {
	return name == "480p" || name == "720p"
}

func ValidVideoPreset(name string) bool {
	switch name {
	case "fun", "normal", "spicy", "custom":
		return true
	}
	return false
}

// VideoStartRequest opens a video generation session. ImageUrl, when set,
// switches the session to image-to-video.
type VideoStartRequest struct {
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	VideoLength     int    `json:"video_length,omitempty"`
	ResolutionName  string `json:"resolution_name,omitempty"`
	Preset          string `json:"preset,omitempty"`
	ImageUrl        string `json:"image_url,omitempty"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
}

type VideoStartResponse struct {
	TaskId      string `json:"task_id"`
	AspectRatio string `json:"aspect_ratio"`
}

type VideoStopRequest struct {
	TaskIds []string `json:"task_ids"`
}

type VideoStopResponse struct {
	Status  string `json:"status"`
	Removed int    `json:"removed"`
}
