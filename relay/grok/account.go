package grok

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v5"

	"github.com/fuchsia74/grok-api/common/random"
)

const (
	nsfwMgmtEndpoint  = GrokOrigin + "/auth_mgmt.AuthManagement/UpdateUserFeatureControls"
	acceptTosEndpoint = AccountsOrigin + "/auth_mgmt.AuthManagement/SetTosAcceptedVersion"
	setBirthEndpoint  = GrokOrigin + "/rest/auth/set-birth-date"
)

// postGrpcWeb performs one gRPC-Web call and returns the decoded trailer
// status. A non-200 HTTP response or a failing grpc-status both come back
// as *UpstreamError carrying the HTTP-equivalent status.
func postGrpcWeb(ctx context.Context, token, endpoint string, protobuf []byte, opts ...HeaderOption) (GrpcStatus, error) {
	req, err := gutils.NewReusableRequest(ctx, http.MethodPost, endpoint,
		bytes.NewReader(EncodeGrpcWebFrame(protobuf)))
	if err != nil {
		return GrpcStatus{Code: -1}, errors.Wrap(err, "new grpc-web request")
	}

	req.Header = BuildHeaders(token, opts...)
	req.Header.Set("Content-Type", "application/grpc-web+proto")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("x-grpc-web", "1")
	req.Header.Set("x-user-agent", "connect-es/2.1.1")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := impatientClient().Do(req)
	observe(endpoint, resp)
	if err != nil {
		return GrpcStatus{Code: -1}, errors.Wrapf(err, "post %s", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GrpcStatus{Code: -1}, errors.Wrapf(err, "read %s response", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return GrpcStatus{Code: -1}, NewUpstreamErrorFromResponse(endpoint, resp, body)
	}

	_, trailers, err := ParseGrpcWebResponse(body, resp.Header.Get("Content-Type"), resp.Header)
	if err != nil {
		return GrpcStatus{Code: -1}, errors.Wrap(err, "parse grpc-web response")
	}

	status := TrailerStatus(trailers)
	// -1 means no trailer came back at all, which upstream treats as success
	// on these endpoints.
	if status.Code > 0 {
		return status, NewUpstreamError(endpoint, status.HTTPEquiv(),
			fmt.Sprintf("grpc-status %d: %s", status.Code, status.Message))
	}
	return status, nil
}

// EnableNSFW flips the always_show_nsfw_content feature control for the
// token's account. The account must already have a birth date on file.
func EnableNSFW(ctx context.Context, token string) (GrpcStatus, error) {
	release, err := acquire(ctx, nsfwSem)
	if err != nil {
		return GrpcStatus{Code: -1}, err
	}
	defer release()

	name := []byte("always_show_nsfw_content")
	inner := append([]byte{0x0a, byte(len(name))}, name...)
	protobuf := append([]byte{0x0a, 0x02, 0x10, 0x01, 0x12, byte(len(inner))}, inner...)

	return postGrpcWeb(ctx, token, nsfwMgmtEndpoint, protobuf,
		WithReferer(GrokOrigin+"/?_s=data"))
}

// AcceptTos marks the current terms-of-service version accepted for the
// token's account on accounts.x.ai.
func AcceptTos(ctx context.Context, token string) (GrpcStatus, error) {
	release, err := acquire(ctx, nsfwSem)
	if err != nil {
		return GrpcStatus{Code: -1}, err
	}
	defer release()

	return postGrpcWeb(ctx, token, acceptTosEndpoint, []byte{0x10, 0x01},
		WithOrigin(AccountsOrigin),
		WithReferer(AccountsOrigin+"/accept-tos"))
}

// SetBirthDate stores a random adult birth date on the account, which
// upstream requires before NSFW content can be enabled. 200 and 204 both
// count as success.
func SetBirthDate(ctx context.Context, token string) error {
	release, err := acquire(ctx, nsfwSem)
	if err != nil {
		return err
	}
	defer release()

	now := time.Now()
	birth := time.Date(
		now.Year()-random.RandRange(20, 49),
		time.Month(random.RandRange(1, 13)),
		random.RandRange(1, 29),
		random.RandRange(0, 24),
		random.RandRange(0, 60),
		random.RandRange(0, 60),
		random.RandRange(0, 1000)*int(time.Millisecond),
		time.UTC,
	)
	payload := map[string]string{
		"birthDate": birth.Format("2006-01-02T15:04:05.000Z"),
	}
	return postJSON(ctx, impatientClient(), setBirthEndpoint, token, payload, nil,
		WithReferer(GrokOrigin+"/?_s=home"))
}
