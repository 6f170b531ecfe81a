package issuer

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pagopa/interop-platform-state/internal/core"
)

// signerMethod lets jwt.Token.SignedString delegate to a core.Signer.
// The key argument passed by the jwt package is ignored.
type signerMethod struct {
	ctx    context.Context
	signer core.Signer
	keyID  string
	alg    string
}

var _ jwt.SigningMethod = (*signerMethod)(nil)

func (m *signerMethod) Alg() string {
	return m.alg
}

func (m *signerMethod) Sign(signingString string, _ any) ([]byte, error) {
	return m.signer.Sign(m.ctx, m.keyID, []byte(signingString), m.alg)
}

func (m *signerMethod) Verify(string, []byte, any) error {
	return errors.New("signer method cannot verify")
}
