package relaymode

const (
	Unknown = iota
	ChatCompletions
	ImagesGenerations
	ImagesEdits
	VideoGenerations
	VoiceToken
)
