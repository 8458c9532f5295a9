package grok

import (
	"context"

	"github.com/Laisky/errors/v2"
)

const (
	mediaPostEndpoint    = GrokOrigin + "/rest/media/post/create"
	videoUpscaleEndpoint = GrokOrigin + "/rest/media/video/upscale"
)

// MediaPost is the upstream post wrapping an uploaded media file. Video
// generations reference it as parentPostId.
type MediaPost struct {
	ID string `json:"id"`
}

type mediaPostResponse struct {
	Post MediaPost `json:"post"`
}

// CreateMediaPost registers an uploaded file as a media post and returns
// its id. mediaType is the upstream enum string, e.g. "MEDIA_POST_TYPE_IMAGE".
func CreateMediaPost(ctx context.Context, token, mediaType, mediaURL string) (*MediaPost, error) {
	release, err := acquire(ctx, mediaSem)
	if err != nil {
		return nil, err
	}
	defer release()

	payload := map[string]string{
		"mediaType": mediaType,
		"mediaUrl":  mediaURL,
	}
	var out mediaPostResponse
	if err := postJSON(ctx, impatientClient(), mediaPostEndpoint, token, payload, &out); err != nil {
		return nil, err
	}
	if out.Post.ID == "" {
		return nil, errors.New("media post response missing post.id")
	}
	return &out.Post, nil
}

// UpscaleVideo requests an upscaled render of a generated video.
func UpscaleVideo(ctx context.Context, token, videoID string) (map[string]any, error) {
	release, err := acquire(ctx, mediaSem)
	if err != nil {
		return nil, err
	}
	defer release()

	var out map[string]any
	if err := postJSON(ctx, impatientClient(), videoUpscaleEndpoint, token,
		map[string]string{"videoId": videoID}, &out,
		WithReferer(GrokOrigin)); err != nil {
		return nil, err
	}
	return out, nil
}
