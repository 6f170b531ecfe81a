package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/api/middleware"
	"github.com/pagopa/interop-platform-state/internal/cliconfig"
	"github.com/pagopa/interop-platform-state/pkg/client"
)

var (
	loginSubject string
	loginTTL     time.Duration
	loginMint    bool
	loginNoCheck bool
)

var loginCmd = &cobra.Command{
	Use:   "login [TOKEN]",
	Short: "Save an admin token for a platform-state server",
	Long: `Saves an operator token for the server given by --server, so that admin
commands (inspect, consumers, audit) can authenticate.

With --mint, the token is signed with server.admin_key of the service config
instead of being passed as argument.`,
	Example: `  platform-state login --server http://localhost:8080 <token>
  platform-state login --server http://localhost:8080 --mint -c config.yaml --subject alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !f.IsRemote() {
			return fmt.Errorf("server address not configured, provide via --server or env")
		}

		var token string
		switch {
		case len(args) == 1 && loginMint:
			return fmt.Errorf("pass either a token or --mint")
		case len(args) == 1:
			token = args[0]
		case loginMint:
			cfg, err := f.LoadConfig()
			if err != nil {
				return err
			}
			token, err = middleware.NewAdminToken([]byte(cfg.Server.AdminKey), loginSubject, loginTTL)
			if err != nil {
				return fmt.Errorf("signing admin token: %w", err)
			}
		default:
			return fmt.Errorf("token cannot be empty")
		}

		if !loginNoCheck {
			cli := client.New(f.RemoteAddr, client.WithAuthToken(token))
			if _, correlation, err := cli.Consumers(cmd.Context()); err != nil {
				return logError(err, correlation, "the server did not accept the token")
			}
		}

		cfg, err := cliconfig.Load()
		if err != nil {
			return fmt.Errorf("loading credentials: %w", err)
		}
		if err := cfg.SetCredential(f.RemoteAddr, token); err != nil {
			return err
		}
		if err := cliconfig.Save(cfg); err != nil {
			return logError(err, "", "login succeeded but could not save credentials")
		}

		logSuccess("saved credentials for %s", bold(f.RemoteAddr))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved admin token of a server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !f.IsRemote() {
			return fmt.Errorf("server address not configured, provide via --server or env")
		}
		cfg, err := cliconfig.Load()
		if err != nil {
			return fmt.Errorf("loading credentials: %w", err)
		}
		removed, err := cfg.RemoveCredential(f.RemoteAddr)
		if err != nil {
			return err
		}
		if !removed {
			log.Warn().Msgf("no credentials saved for %s", f.RemoteAddr)
			return nil
		}
		if err := cliconfig.Save(cfg); err != nil {
			return err
		}
		logSuccess("removed credentials for %s", bold(f.RemoteAddr))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	defaultSubject := os.Getenv("USER")
	if defaultSubject == "" {
		defaultSubject = "operator"
	}
	loginCmd.Flags().BoolVar(&loginMint, "mint", false, "Sign a new admin token with the configured admin key")
	loginCmd.Flags().StringVar(&loginSubject, "subject", defaultSubject, "Subject of a minted token")
	loginCmd.Flags().DurationVar(&loginTTL, "ttl", 12*time.Hour, "Lifetime of a minted token")
	loginCmd.Flags().BoolVar(&loginNoCheck, "no-check", false, "Do not verify the token against the server")
}
