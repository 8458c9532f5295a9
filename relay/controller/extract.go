package controller

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/relay/grok"
	relaymodel "github.com/fuchsia74/grok-api/relay/model"
)

// Attachment kinds produced by message extraction.
const (
	attachmentImage = "image"
	attachmentAudio = "audio"
	attachmentFile  = "file"
)

// attachment is a media reference pulled out of message content, pending
// upload. data is a URL or data URI.
type attachment struct {
	kind string
	data string
}

// extractMessages flattens the conversation into a single prompt and
// collects media attachments. Every entry except the last user message is
// prefixed with its role, so the upstream sees the history as transcript
// lines. Video models accept only image attachments.
func extractMessages(messages []relaymodel.Message, isVideo bool) (string, []attachment, *relaymodel.ErrorWithStatusCode) {
	type entry struct {
		role string
		text string
	}
	var entries []entry
	var attachments []attachment

	for _, msg := range messages {
		var parts []string
		switch content := msg.Content.(type) {
		case string:
			if strings.TrimSpace(content) != "" {
				parts = append(parts, content)
			}
		case []any:
			for _, raw := range content {
				block, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				blockType, _ := block["type"].(string)
				switch blockType {
				case relaymodel.ContentTypeText:
					if text, _ := block["text"].(string); strings.TrimSpace(text) != "" {
						parts = append(parts, strings.TrimSpace(text))
					}
				case relaymodel.ContentTypeImageURL:
					if url := mediaValue(block["image_url"], "url"); url != "" {
						attachments = append(attachments, attachment{kind: attachmentImage, data: url})
					}
				case relaymodel.ContentTypeInputAudio:
					if isVideo {
						return "", nil, relaymodel.NewValidationError(
							"input_audio attachments are not supported by video models",
							"messages", "invalid_attachment")
					}
					if data := mediaValue(block["input_audio"], "data"); data != "" {
						attachments = append(attachments, attachment{kind: attachmentAudio, data: data})
					}
				case relaymodel.ContentTypeFile:
					if isVideo {
						return "", nil, relaymodel.NewValidationError(
							"file attachments are not supported by video models",
							"messages", "invalid_attachment")
					}
					if data := mediaValue(block["file"], "file_data"); data != "" {
						attachments = append(attachments, attachment{kind: attachmentFile, data: data})
					}
				}
			}
		}
		if len(parts) > 0 {
			entries = append(entries, entry{role: msg.Role, text: strings.Join(parts, "\n")})
		}
	}

	lastUser := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].role == relaymodel.RoleUser {
			lastUser = i
			break
		}
	}

	texts := make([]string, 0, len(entries))
	for i, e := range entries {
		if i == lastUser {
			texts = append(texts, e.text)
			continue
		}
		role := e.role
		if role == "" {
			role = relaymodel.RoleUser
		}
		texts = append(texts, role+": "+e.text)
	}
	return strings.Join(texts, "\n\n"), attachments, nil
}

// mediaValue reads the payload of a media block, tolerating the shorthand
// where the block value is the bare string instead of an object.
func mediaValue(raw any, key string) string {
	switch v := raw.(type) {
	case map[string]any:
		s, _ := v[key].(string)
		return strings.TrimSpace(s)
	case string:
		return strings.TrimSpace(v)
	}
	return ""
}

// uploadAttachments pushes the extracted attachments upstream and returns
// their file metadata ids in input order. Ids are account-bound, so callers
// re-upload whenever they switch tokens.
func uploadAttachments(ctx context.Context, token string, attachments []attachment) ([]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	ids := make([]string, len(attachments))
	g, gctx := errgroup.WithContext(ctx)
	limit := config.UploadMaxConcurrent
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, att := range attachments {
		g.Go(func() error {
			filename, mime, b64, err := grok.PrepareAttachment(gctx, att.data)
			if err != nil {
				return errors.Wrapf(err, "prepare %s attachment", att.kind)
			}
			uploaded, err := grok.UploadFile(gctx, token, filename, mime, b64)
			if err != nil {
				return errors.Wrapf(err, "upload %s attachment", att.kind)
			}
			ids[i] = uploaded.FileMetadataID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}
