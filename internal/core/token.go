package core

import "time"

// TokenArtifact is the result of a successful issuance.
type TokenArtifact struct {
	// Value is the signed access token (compact JWS).
	Value string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// ID is the jti of the token.
	ID string `json:"-"`

	// ExpiresAt indicates when this token becomes invalid.
	ExpiresAt time.Time `json:"-"`

	// Audience the token was issued for.
	Audience []string `json:"-"`
}
