package dto

// BatchTokensRequest selects the credentials a bulk maintenance job runs
// over. Empty Tokens means every stored token, optionally narrowed to one
// pool.
type BatchTokensRequest struct {
	Pool   string   `json:"pool" binding:"omitempty,pooltype"`
	Tokens []string `json:"tokens" binding:"omitempty,dive,min=1"`
}
