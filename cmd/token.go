package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pagopa/interop-platform-state/internal/validation"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Request tokens and build client assertions",
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

// tokenRequestFlags are shared by every command that sends a token request.
type tokenRequestFlags struct {
	clientID      string
	assertion     string
	assertionFile string
	assertionType string
	grantType     string
}

func (t *tokenRequestFlags) bind(flags *pflag.FlagSet) {
	flags.StringVar(&t.clientID, "client-id", "", "Client ID the assertion was issued for")
	flags.StringVarP(&t.assertion, "assertion", "a", "", "Signed client assertion")
	flags.StringVar(&t.assertionFile, "assertion-file", "", "Read the client assertion from a file ('-' for stdin)")
	flags.StringVar(&t.assertionType, "assertion-type", validation.AssertionType, "client_assertion_type of the request")
	flags.StringVar(&t.grantType, "grant-type", validation.GrantType, "grant_type of the request")
}

func (t *tokenRequestFlags) request() (validation.Request, error) {
	assertion := t.assertion
	if t.assertionFile != "" {
		if assertion != "" {
			return validation.Request{}, fmt.Errorf("--assertion and --assertion-file are mutually exclusive")
		}
		data, err := readFileOrStdin(t.assertionFile)
		if err != nil {
			return validation.Request{}, fmt.Errorf("reading assertion: %w", err)
		}
		assertion = strings.TrimSpace(string(data))
	}
	if assertion == "" {
		return validation.Request{}, fmt.Errorf("no client assertion given (use --assertion or --assertion-file)")
	}
	return validation.Request{
		ClientID:      t.clientID,
		Assertion:     assertion,
		AssertionType: t.assertionType,
		GrantType:     t.grantType,
	}, nil
}
