package grok

import (
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
)

// GrpcStatus is the decoded grpc-status/grpc-message trailer pair of a
// gRPC-Web response. A missing or unparsable status decodes to code -1.
type GrpcStatus struct {
	Code    int
	Message string
}

// OK reports whether the call finished with grpc-status 0.
func (s GrpcStatus) OK() bool { return s.Code == 0 }

// HTTPEquiv maps the gRPC status code onto the nearest HTTP status so pool
// accounting and client responses can treat both transports uniformly.
func (s GrpcStatus) HTTPEquiv() int {
	switch s.Code {
	case 0:
		return http.StatusOK
	case 16:
		return http.StatusUnauthorized
	case 7:
		return http.StatusForbidden
	case 8:
		return http.StatusTooManyRequests
	case 4:
		return http.StatusGatewayTimeout
	case 14:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

const (
	grpcFrameTrailer    = 0x80
	grpcFrameCompressed = 0x01
)

var base64BodyRe = regexp.MustCompile(`^[A-Za-z0-9+/=\r\n]+$`)

// EncodeGrpcWebFrame wraps a protobuf payload in an uncompressed gRPC-Web
// data frame: one flag byte followed by a big-endian length prefix.
func EncodeGrpcWebFrame(data []byte) []byte {
	frame := make([]byte, 5+len(data))
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(data)))
	copy(frame[5:], data)
	return frame
}

// ParseGrpcWebResponse splits a gRPC-Web response body into its data frames
// and trailer map. grpc-web-text bodies are base64-decoded first, detected by
// content type or by sniffing the body head. Truncated tails are dropped
// rather than rejected since upstream occasionally closes mid-frame. Response
// headers backfill grpc-status/grpc-message when the trailer frame lacks them.
func ParseGrpcWebResponse(body []byte, contentType string, headers http.Header) ([][]byte, map[string]string, error) {
	decoded := maybeDecodeGrpcWebText(body, contentType)

	var messages [][]byte
	trailers := make(map[string]string)

	for i := 0; i+5 <= len(decoded); {
		flag := decoded[i]
		length := int(binary.BigEndian.Uint32(decoded[i+1 : i+5]))
		i += 5
		if len(decoded)-i < length {
			break
		}
		payload := decoded[i : i+length]
		i += length

		switch {
		case flag&grpcFrameTrailer != 0:
			for k, v := range parseTrailerBlock(payload) {
				trailers[k] = v
			}
		case flag&grpcFrameCompressed != 0:
			return nil, nil, errors.New("grpc-web compressed flag not supported")
		default:
			messages = append(messages, payload)
		}
	}

	if headers != nil {
		if v := headers.Get("grpc-status"); v != "" && trailers["grpc-status"] == "" {
			trailers["grpc-status"] = strings.TrimSpace(v)
		}
		if v := headers.Get("grpc-message"); v != "" && trailers["grpc-message"] == "" {
			trailers["grpc-message"] = percentDecode(strings.TrimSpace(v))
		}
	}

	return messages, trailers, nil
}

// TrailerStatus extracts the GrpcStatus from a parsed trailer map.
func TrailerStatus(trailers map[string]string) GrpcStatus {
	code := -1
	if raw := strings.TrimSpace(trailers["grpc-status"]); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			code = n
		}
	}
	return GrpcStatus{Code: code, Message: strings.TrimSpace(trailers["grpc-message"])}
}

func maybeDecodeGrpcWebText(body []byte, contentType string) []byte {
	compactDecode := func(strict bool) ([]byte, bool) {
		compact := strings.Join(strings.Fields(string(body)), "")
		out, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			if strict {
				return nil, false
			}
			// tolerate trailing garbage the way lenient decoders do
			if out2, err2 := base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(compact, "=")); err2 == nil {
				return out2, true
			}
			return nil, false
		}
		return out, true
	}

	if strings.Contains(strings.ToLower(contentType), "grpc-web-text") {
		if out, ok := compactDecode(false); ok {
			return out
		}
		return body
	}

	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	if len(head) > 0 && base64BodyRe.Match(head) {
		if out, ok := compactDecode(true); ok {
			return out
		}
	}
	return body
}

// parseTrailerBlock parses the "key: value" lines of a trailer frame,
// lowercasing keys and percent-decoding grpc-message.
func parseTrailerBlock(payload []byte) map[string]string {
	trailers := make(map[string]string)
	text := strings.ReplaceAll(string(payload), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		trailers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	if msg, ok := trailers["grpc-message"]; ok {
		trailers["grpc-message"] = percentDecode(msg)
	}
	return trailers
}

func percentDecode(s string) string {
	if out, err := url.QueryUnescape(strings.ReplaceAll(s, "+", "%2B")); err == nil {
		return out
	}
	return s
}
