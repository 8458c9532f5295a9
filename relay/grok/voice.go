package grok

import (
	"context"
	"encoding/json"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	livekitTokensEndpoint = GrokOrigin + "/rest/livekit/tokens"

	// LivekitURL is the realtime voice server the upstream web client
	// connects to with the issued access token.
	LivekitURL = "wss://livekit.grok.com"
)

// VoiceSession captures the LiveKit access token together with the room and
// participant identity baked into its claims.
type VoiceSession struct {
	AccessToken     string
	RoomName        string
	ParticipantName string
}

type voiceSessionPayload struct {
	Voice         string            `json:"voice"`
	Personality   string            `json:"personality"`
	PlaybackSpeed float64           `json:"playback_speed"`
	EnableVision  bool              `json:"enable_vision"`
	TurnDetection map[string]string `json:"turn_detection"`
}

type livekitTokenResponse struct {
	Token string `json:"token"`
}

// CreateVoiceSession asks the upstream for a LiveKit access token scoped to
// a fresh voice room. voice and personality select the assistant persona.
func CreateVoiceSession(ctx context.Context, token, voice, personality string, speed float64) (*VoiceSession, error) {
	if voice == "" {
		voice = "ara"
	}
	if personality == "" {
		personality = "assistant"
	}
	if speed <= 0 {
		speed = 1.0
	}

	session, err := json.Marshal(voiceSessionPayload{
		Voice:         voice,
		Personality:   personality,
		PlaybackSpeed: speed,
		EnableVision:  false,
		TurnDetection: map[string]string{"type": "server_vad"},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal session payload")
	}

	payload := map[string]any{
		"sessionPayload":       string(session),
		"requestAgentDispatch": false,
		"livekitUrl":           LivekitURL,
		"params":               map[string]string{"enable_markdown_transcript": "true"},
	}

	var out livekitTokenResponse
	if err := postJSON(ctx, impatientClient(), livekitTokensEndpoint, token, payload, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("livekit response missing token")
	}

	vs := &VoiceSession{AccessToken: out.Token}
	vs.RoomName, vs.ParticipantName = parseLivekitClaims(out.Token)
	return vs, nil
}

// livekitVideoClaim is the LiveKit video grant embedded in the JWT.
type livekitVideoClaim struct {
	Room string `json:"room"`
}

// parseLivekitClaims pulls the room and participant identity out of the
// LiveKit JWT without verifying its signature; the token is only decoded for
// display, never trusted.
func parseLivekitClaims(accessToken string) (room, participant string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return "", ""
	}

	if sub, ok := claims["sub"].(string); ok {
		participant = sub
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		participant = name
	}
	if rawVideo, ok := claims["video"]; ok {
		if data, err := json.Marshal(rawVideo); err == nil {
			var video livekitVideoClaim
			if err := json.Unmarshal(data, &video); err == nil {
				room = video.Room
			}
		}
	}
	return room, participant
}
