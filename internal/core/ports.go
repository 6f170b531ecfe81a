package core

import "context"

// Signer produces signatures with keys it holds, KMS style.
// The private key material never leaves the signer.
type Signer interface {
	// Sign signs message with the key identified by keyID.
	// alg is the JWS algorithm name (e.g. "RS256").
	Sign(ctx context.Context, keyID string, message []byte, alg string) ([]byte, error)
}
