package model

// VoiceTokenResponse carries a brokered LiveKit access token for the
// upstream voice mode. ParticipantName and RoomName are read out of the
// token's JWT claims when present.
type VoiceTokenResponse struct {
	Token           string `json:"token"`
	Url             string `json:"url"`
	ParticipantName string `json:"participant_name"`
	RoomName        string `json:"room_name"`
}
