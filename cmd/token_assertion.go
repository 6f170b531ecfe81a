package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/validation"
)

var (
	assertionClientID  string
	assertionKid       string
	assertionKeyPath   string
	assertionAlg       string
	assertionAudience  []string
	assertionPurposeID string
	assertionTTL       time.Duration
)

var tokenAssertionCmd = &cobra.Command{
	Use:   "assertion",
	Short: "Build and sign a client assertion with a client key",
	Long: `Signs a client assertion the way a client would before requesting a token.
The private key must belong to the public key registered for --kid.`,
	Example: `  platform-state token assertion --client-id <id> --kid <kid> --key client.pem --aud interop.example
  platform-state token assertion ... --purpose-id <purpose-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		method := jwt.GetSigningMethod(assertionAlg)
		if method == nil {
			return fmt.Errorf("unknown signing algorithm '%s'", assertionAlg)
		}
		pemBytes, err := os.ReadFile(assertionKeyPath)
		if err != nil {
			return fmt.Errorf("reading private key: %w", err)
		}

		var key any
		switch {
		case strings.HasPrefix(assertionAlg, "ES"):
			key, err = jwt.ParseECPrivateKeyFromPEM(pemBytes)
		default:
			key, err = jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		}
		if err != nil {
			return fmt.Errorf("parsing private key: %w", err)
		}

		now := time.Now()
		claims := validation.AssertionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    assertionClientID,
				Subject:   assertionClientID,
				Audience:  assertionAudience,
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
			},
			PurposeID: assertionPurposeID,
		}
		token := jwt.NewWithClaims(method, claims)
		token.Header["kid"] = assertionKid

		signed, err := token.SignedString(key)
		if err != nil {
			return fmt.Errorf("signing assertion: %w", err)
		}
		fmt.Println(signed)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenAssertionCmd)

	tokenAssertionCmd.Flags().StringVar(&assertionClientID, "client-id", "", "Client ID, used as issuer and subject")
	tokenAssertionCmd.Flags().StringVar(&assertionKid, "kid", "", "Key ID of the client key")
	tokenAssertionCmd.Flags().StringVarP(&assertionKeyPath, "key", "k", "", "PEM encoded private key")
	tokenAssertionCmd.Flags().StringVar(&assertionAlg, "alg", "RS256", "Signing algorithm")
	tokenAssertionCmd.Flags().StringSliceVar(&assertionAudience, "aud", nil, "Audience of the assertion")
	tokenAssertionCmd.Flags().StringVar(&assertionPurposeID, "purpose-id", "", "Purpose to request a token for (consumer clients)")
	tokenAssertionCmd.Flags().DurationVar(&assertionTTL, "ttl", 5*time.Minute, "Lifetime of the assertion")

	_ = tokenAssertionCmd.MarkFlagRequired("client-id")
	_ = tokenAssertionCmd.MarkFlagRequired("kid")
	_ = tokenAssertionCmd.MarkFlagRequired("key")
	_ = tokenAssertionCmd.MarkFlagRequired("aud")
}
