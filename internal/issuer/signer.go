package issuer

import (
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
)

const SignerLocal = "local"

var _ core.Signer = (*LocalSigner)(nil)

// LocalSignerConfig holds the options of the local signer.
type LocalSignerConfig struct {
	// PrivateKeyPath points to a PEM encoded RSA private key.
	PrivateKeyPath string `mapstructure:"private_key_path"`

	// PrivateKey is an inline PEM encoded RSA private key, used when no path is set.
	PrivateKey string `mapstructure:"private_key"`
}

// LocalSigner keeps one RSA private key in process memory.
type LocalSigner struct {
	keyID string
	key   *rsa.PrivateKey
}

func NewLocalSigner(keyID string, pemBytes []byte) (*LocalSigner, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	return &LocalSigner{keyID: keyID, key: key}, nil
}

// NewSigner builds the signer selected by the issuer configuration.
func NewSigner(cfg config.IssuerConfig) (core.Signer, error) {
	switch cfg.Signer {
	case SignerLocal:
		var conf LocalSignerConfig
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Metadata: nil,
			Result:   &conf,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder for local signer: %w", err)
		}
		if err := decoder.Decode(cfg.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options for local signer: %w", err)
		}

		pemBytes := []byte(conf.PrivateKey)
		if conf.PrivateKeyPath != "" {
			if pemBytes, err = os.ReadFile(conf.PrivateKeyPath); err != nil {
				return nil, fmt.Errorf("reading signing key: %w", err)
			}
		}
		if len(pemBytes) == 0 {
			return nil, fmt.Errorf("local signer needs issuer.options.private_key_path or private_key")
		}
		return NewLocalSigner(cfg.KeyID, pemBytes)
	default:
		return nil, fmt.Errorf("unknown signer '%s'", cfg.Signer)
	}
}

// Sign signs message with the configured key. Only RSA algorithms are supported.
func (s *LocalSigner) Sign(_ context.Context, keyID string, message []byte, alg string) ([]byte, error) {
	if keyID != s.keyID {
		return nil, fmt.Errorf("unknown signing key '%s'", keyID)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("unknown algorithm '%s'", alg)
	}
	if _, ok := method.(*jwt.SigningMethodRSA); !ok {
		if _, ok := method.(*jwt.SigningMethodRSAPSS); !ok {
			return nil, fmt.Errorf("algorithm '%s' does not fit an RSA key", alg)
		}
	}
	return method.Sign(string(message), s.key)
}

// PublicKey returns the public half of the signing key.
func (s *LocalSigner) PublicKey() crypto.PublicKey {
	return s.key.Public()
}
