package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/validation"
)

var diagnoseFlags tokenRequestFlags

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Explain why a client assertion is accepted or rejected",
	Long: `Runs the four validation steps of a token request without issuing a token and
prints the outcome of every step with its failure codes.

Runs against a remote server with --server, or against the configured store.`,
	Example: `  # why is my assertion rejected?
  platform-state diagnose --server http://localhost:8080 --client-id <id> -a <assertion>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := diagnoseFlags.request()
		if err != nil {
			return err
		}

		var (
			steps  []validation.StepResult
			kind   string
			passed bool
		)
		if f.IsRemote() {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			resp, correlation, err := cli.Diagnose(cmd.Context(), req)
			if err != nil {
				return logError(err, correlation, "failed to diagnose token request")
			}
			steps, kind, passed = resp.Steps, resp.Kind, resp.Passed
		} else {
			cfg, err := f.LoadConfig()
			if err != nil {
				return err
			}
			backend, err := f.OpenBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			svc, auditor, err := f.GetLocalService(cfg, backend)
			if err != nil {
				return err
			}
			defer func() {
				_ = auditor.Close()
			}()

			res, err := svc.Diagnose(log.Logger.WithContext(cmd.Context()), req)
			if err != nil {
				return err
			}
			steps, passed = res.Steps, res.Passed()
			if res.Key != nil {
				kind = string(res.Key.Base().Kind)
			}
		}

		printSteps(steps)
		if passed {
			fmt.Printf("Decision: %s (client kind %s)\n\n", bold(green("token would be issued")), bold(kind))
		} else {
			fmt.Printf("Decision: %s\n\n", bold(red("rejected")))
		}
		return nil
	},
}

// printSteps renders a validation trail, one line per step followed by its failures.
func printSteps(steps []validation.StepResult) {
	fmt.Printf("\n%s\n", bold("Client Assertion Validation"))
	fmt.Println(faint("---------------------------------------------------"))
	for _, step := range steps {
		name := step.Name
		if step.Status == validation.StatusSkipped {
			name = faint(name)
		} else {
			name = bold(name)
		}
		fmt.Printf("%s %s %s\n", stepIcon(step.Status), name, faint("("+string(step.Status)+")"))
		for _, failure := range step.Failures {
			fmt.Printf("      ↳ %s: %s\n", yellow(failure.Code), failure.Message)
		}
	}
	fmt.Println(faint("---------------------------------------------------"))
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	diagnoseFlags.bind(diagnoseCmd.Flags())
}
