package ctxkey

import "github.com/gin-gonic/gin"

const (
	// RequestId is a per-request unique identifier (also used for logging/metrics).
	// Set in: middleware/request-id for every request.
	// Read in: relay controllers and error envelopes for tracing.
	// Note: the literal value is "X-Grokapi-Request-Id" for consistency with header naming.
	RequestId = "X-Grokapi-Request-Id"

	// RequestModel is the model name as requested by the client (e.g., "grok-4-fast").
	// Set in: relay controllers once the body is parsed.
	// Invariant: never mutate this value; it must always reflect the user's original input.
	// Mapping to the upstream model id happens in relay/routing, not by mutating this key.
	RequestModel = "request_model"

	// RelayMode records the relay processing mode (chat, image, video, voice) selected for the request.
	// Set in: middleware/distributor from the route path.
	// Read in: controller/relay to dispatch to the matching entrypoint.
	RelayMode = "relay_mode"

	// TokenId is the database id of the upstream session token serving this request.
	// Set in: relay controllers after pool selection, refreshed on each fallover attempt.
	// Read in: request logging and failure accounting.
	TokenId = "token_id"

	// ClientKey is the masked client API key that authenticated this request.
	// Set in: middleware/auth.APIKeyAuth.
	// Read in: request logging.
	ClientKey = "client_key"

	// Role marks the authenticated surface: "api" for /v1 bearer clients, "admin" for
	// app-key or session authenticated admin calls.
	// Set in: middleware/auth.
	// Read in: admin controllers for permission checks.
	Role = "role"

	// ResponseFormat is used by image APIs to carry the desired output format when posted via JSON.
	// Set in: image controller from the request payload.
	// Read in: stream processors to decide between url and b64_json rendering.
	ResponseFormat = "response_format"

	// KeyRequestBody caches the raw request body bytes for reuse (avoid double read).
	// Set in: common/gin.go GetRequestBody and UnmarshalBodyReusable.
	// Read in: relay controllers that bind the same body twice.
	KeyRequestBody = gin.BodyBytesKey

	// ClientRequestPayloadLogged marks that the inbound payload debug log already fired,
	// so repeated UnmarshalBodyReusable calls stay quiet.
	ClientRequestPayloadLogged = "client_request_payload_logged"
)
