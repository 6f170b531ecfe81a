// Package issuer mints access tokens for validated client keys.
// Signing goes through core.Signer so the private key may live outside the process.
package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

// Claims are the claims of an issued token.
type Claims struct {
	jwt.RegisteredClaims
	ClientID       string `json:"client_id"`
	PurposeID      string `json:"purposeId,omitempty"`
	OrganizationID string `json:"organizationId"`
}

type Issuer struct {
	cfg    config.IssuerConfig
	signer core.Signer
	now    func() time.Time
}

func New(cfg config.IssuerConfig, signer core.Signer) *Issuer {
	return &Issuer{
		cfg:    cfg,
		signer: signer,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for iat/exp, for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue mints a token for key. Consumer keys get the descriptor audience and
// voucher lifespan, API keys the configured ones.
func (i *Issuer) Issue(ctx context.Context, key validation.KeyDescriptor) (*core.TokenArtifact, error) {
	base := key.Base()
	audience := i.cfg.APIAudience
	lifespan := i.cfg.APIVoucherLifespan
	var purposeID string

	switch k := key.(type) {
	case validation.ConsumerKey:
		audience = k.Audience
		lifespan = k.VoucherLifespan
		purposeID = k.PurposeID
	case validation.APIKey:
	default:
		return nil, fmt.Errorf("unsupported key descriptor %T", key)
	}
	if len(audience) == 0 {
		return nil, fmt.Errorf("no audience for client '%s'", base.ClientID)
	}
	if lifespan <= 0 {
		return nil, fmt.Errorf("no voucher lifespan for client '%s'", base.ClientID)
	}

	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(lifespan)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Name,
			Subject:   base.ClientID,
			Audience:  audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		ClientID:       base.ClientID,
		PurposeID:      purposeID,
		OrganizationID: base.ConsumerID,
	}

	method := &signerMethod{ctx: ctx, signer: i.signer, keyID: i.cfg.KeyID, alg: i.cfg.Algorithm}
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = i.cfg.KeyID
	signed, err := token.SignedString(nil)
	if err != nil {
		return nil, fmt.Errorf("signing token for client '%s': %w", base.ClientID, err)
	}

	return &core.TokenArtifact{
		Value:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(lifespan / time.Second),
		ID:        jti,
		ExpiresAt: exp,
		Audience:  audience,
	}, nil
}
