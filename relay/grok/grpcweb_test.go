package grok

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeGrpcWebFrame(t *testing.T) {
	frame := EncodeGrpcWebFrame([]byte{0x10, 0x01})
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x02, 0x10, 0x01}, frame)

	empty := EncodeGrpcWebFrame(nil)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00}, empty)
}

func TestParseGrpcWebResponse_RoundTrip(t *testing.T) {
	payload := []byte("hello-proto")
	body := EncodeGrpcWebFrame(payload)
	trailer := []byte{0x80, 0x00, 0x00, 0x00, 0x00}
	trailerBody := []byte("grpc-status: 0\r\ngrpc-message: \r\n")
	trailer[4] = byte(len(trailerBody))
	body = append(body, trailer...)
	body = append(body, trailerBody...)

	messages, trailers, err := ParseGrpcWebResponse(body, "application/grpc-web+proto", nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, payload, messages[0])
	assert.Equal(t, "0", trailers["grpc-status"])

	status := TrailerStatus(trailers)
	assert.True(t, status.OK())
	assert.Equal(t, http.StatusOK, status.HTTPEquiv())
}

func TestParseGrpcWebResponse_Base64Text(t *testing.T) {
	raw := EncodeGrpcWebFrame([]byte("msg"))
	trailerBody := []byte("grpc-status: 16\ngrpc-message: invalid%20session\n")
	raw = append(raw, 0x80, 0x00, 0x00, 0x00, byte(len(trailerBody)))
	raw = append(raw, trailerBody...)

	encoded := []byte(base64.StdEncoding.EncodeToString(raw))

	messages, trailers, err := ParseGrpcWebResponse(encoded, "application/grpc-web-text+proto", nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "msg", string(messages[0]))
	assert.Equal(t, "invalid session", trailers["grpc-message"])

	status := TrailerStatus(trailers)
	assert.Equal(t, 16, status.Code)
	assert.Equal(t, http.StatusUnauthorized, status.HTTPEquiv())
}

func TestParseGrpcWebResponse_CompressedRejected(t *testing.T) {
	body := []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0xff}
	_, _, err := ParseGrpcWebResponse(body, "application/grpc-web+proto", nil)
	assert.Error(t, err)
}

func TestParseGrpcWebResponse_TruncatedTailDropped(t *testing.T) {
	body := EncodeGrpcWebFrame([]byte("complete"))
	// second frame claims 100 bytes but carries 2
	body = append(body, 0x00, 0x00, 0x00, 0x00, 0x64, 0xaa, 0xbb)

	messages, _, err := ParseGrpcWebResponse(body, "application/grpc-web+proto", nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "complete", string(messages[0]))
}

func TestParseGrpcWebResponse_HeaderFallback(t *testing.T) {
	headers := http.Header{}
	headers.Set("grpc-status", "8")
	headers.Set("grpc-message", "rate%20limited")

	messages, trailers, err := ParseGrpcWebResponse(nil, "application/grpc-web+proto", headers)
	require.NoError(t, err)
	assert.Empty(t, messages)

	status := TrailerStatus(trailers)
	assert.Equal(t, 8, status.Code)
	assert.Equal(t, "rate limited", status.Message)
	assert.Equal(t, http.StatusTooManyRequests, status.HTTPEquiv())
}

func TestGrpcStatusHTTPEquiv(t *testing.T) {
	cases := map[int]int{
		0:  http.StatusOK,
		16: http.StatusUnauthorized,
		7:  http.StatusForbidden,
		8:  http.StatusTooManyRequests,
		4:  http.StatusGatewayTimeout,
		14: http.StatusServiceUnavailable,
		13: http.StatusBadGateway,
		-1: http.StatusBadGateway,
	}
	for code, want := range cases {
		assert.Equal(t, want, GrpcStatus{Code: code}.HTTPEquiv(), "code %d", code)
	}
}

func TestTrailerStatus_MissingStatus(t *testing.T) {
	status := TrailerStatus(map[string]string{})
	assert.Equal(t, -1, status.Code)
	assert.False(t, status.OK())
}
