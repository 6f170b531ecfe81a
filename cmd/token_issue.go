package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/service"
	"github.com/pagopa/interop-platform-state/internal/validation"
	"github.com/pagopa/interop-platform-state/pkg/client"
)

var (
	tokenIssueFlags tokenRequestFlags
	tokenIssueRaw   bool
)

// tokenIssueCmd represents the token issue command
var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Exchange a client assertion for an access token",
	Long: `Sends a client credentials request to a remote server (--server), or validates
the assertion against the configured store and signs the token locally (--config).`,
	Example: `  platform-state token issue --server http://localhost:8080 --client-id <id> -a <assertion>
  platform-state token assertion ... | platform-state token issue -c config.yaml --client-id <id> --assertion-file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := tokenIssueFlags.request()
		if err != nil {
			return err
		}

		var artifact *core.TokenArtifact
		if f.IsRemote() {
			artifact, err = issueRemote(cmd, req)
		} else {
			artifact, err = issueLocally(cmd, req)
		}
		if err != nil {
			return err
		}

		if tokenIssueRaw {
			fmt.Println(artifact.Value)
			return nil
		}
		logSuccess("token issued, expires in %s", time.Duration(artifact.ExpiresIn)*time.Second)
		fmt.Println(artifact.Value)
		return nil
	},
}

func issueRemote(cmd *cobra.Command, req validation.Request) (*core.TokenArtifact, error) {
	cli, err := f.GetClient()
	if err != nil {
		return nil, err
	}
	log.Debug().Msg("Requesting token from server...")
	artifact, correlation, err := cli.IssueToken(cmd.Context(), req)
	if err != nil {
		var apiErr client.APIError
		if errors.As(err, &apiErr) && len(apiErr.Steps) > 0 {
			printSteps(apiErr.Steps)
		}
		return nil, logError(err, correlation, "failed to issue token")
	}
	return artifact, nil
}

func issueLocally(cmd *cobra.Command, req validation.Request) (*core.TokenArtifact, error) {
	cfg, err := f.LoadConfig()
	if err != nil {
		return nil, err
	}
	backend, err := f.OpenBackend(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	svc, auditor, err := f.GetLocalService(cfg, backend)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = auditor.Close()
	}()

	resp, err := svc.IssueToken(log.Logger.WithContext(cmd.Context()), req)
	if err != nil {
		if res, ok := service.IsRejected(err); ok {
			printSteps(res.Steps)
		}
		return nil, logError(err, "", "failed to issue token")
	}
	return resp.Artifact, nil
}

func init() {
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueFlags.bind(tokenIssueCmd.Flags())
	tokenIssueCmd.Flags().BoolVar(&tokenIssueRaw, "raw", false, "Only print the access token")
}
