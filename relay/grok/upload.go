package grok

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v5"

	"github.com/fuchsia74/grok-api/common/client"
)

const uploadEndpoint = GrokOrigin + "/rest/app-chat/upload-file"

// UploadedFile identifies one attachment accepted by the upstream.
type UploadedFile struct {
	FileMetadataID string `json:"fileMetadataId"`
	FileURI        string `json:"fileUri"`
}

type uploadPayload struct {
	FileName     string `json:"fileName"`
	FileMimeType string `json:"fileMimeType"`
	Content      string `json:"content"`
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// PrepareAttachment normalizes a client-supplied file reference into the
// name/mime/base64 triple the upload endpoint expects. Remote http(s) URLs
// are fetched through the user-content client; everything else is treated as
// a data URI (or raw base64 with unknown type).
func PrepareAttachment(ctx context.Context, input string) (filename, mime, b64 string, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", "", errors.New("empty file input")
	}
	if isRemoteURL(input) {
		return fetchRemote(ctx, input)
	}
	filename, mime, b64 = decodeDataURI(input)
	return filename, mime, b64, nil
}

func isRemoteURL(v string) bool {
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func fetchRemote(ctx context.Context, rawURL string) (filename, mime, b64 string, err error) {
	req, err := gutils.NewReusableRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", "", errors.Wrap(err, "new fetch request")
	}
	resp, err := client.UserContentRequestHTTPClient.Do(req)
	if err != nil {
		return "", "", "", errors.Wrapf(err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", "", NewUpstreamErrorFromResponse(rawURL, resp, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", "", errors.Wrapf(err, "read %s", rawURL)
	}

	if u, perr := url.Parse(rawURL); perr == nil {
		filename = path.Base(u.Path)
	}
	if filename == "" || filename == "/" || filename == "." {
		filename = "download"
	}
	mime = strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	if mime == "" {
		mime = "application/octet-stream"
	}
	return filename, mime, base64.StdEncoding.EncodeToString(data), nil
}

// decodeDataURI splits a data URI into its parts. Bare base64 falls through
// with a generic name and type, matching how lenient clients submit files.
func decodeDataURI(input string) (filename, mime, b64 string) {
	if !strings.HasPrefix(input, "data:") {
		return "file.bin", "application/octet-stream", input
	}
	header, rest, ok := strings.Cut(input, ",")
	if !ok || !strings.Contains(header, ";base64") {
		return "file.bin", "application/octet-stream", input
	}
	mime = strings.SplitN(strings.TrimPrefix(header, "data:"), ";", 2)[0]
	if mime == "" {
		mime = "application/octet-stream"
	}
	ext := "bin"
	if i := strings.LastIndex(mime, "/"); i >= 0 && i+1 < len(mime) {
		ext = mime[i+1:]
	}
	return "file." + ext, mime, whitespaceRe.ReplaceAllString(rest, "")
}

// UploadFile pushes one attachment to the upstream and returns its metadata
// id and URI. Uploads share a process-wide concurrency gate.
func UploadFile(ctx context.Context, token, filename, mime, b64 string) (*UploadedFile, error) {
	release, err := acquire(ctx, uploadSem)
	if err != nil {
		return nil, err
	}
	defer release()

	if b64 == "" {
		return nil, errors.New("empty file content")
	}

	var out UploadedFile
	if err := postJSON(ctx, impatientClient(), uploadEndpoint, token,
		uploadPayload{FileName: filename, FileMimeType: mime, Content: b64}, &out); err != nil {
		return nil, err
	}
	if out.FileMetadataID == "" {
		return nil, errors.New("upload response missing fileMetadataId")
	}
	return &out, nil
}
