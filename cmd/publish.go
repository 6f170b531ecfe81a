package cmd

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/events"
	"github.com/pagopa/interop-platform-state/internal/stream"
)

var (
	publishDomain string
	publishFile   string
	publishForce  bool
)

// eventFile is the YAML form of an event accepted by publish.
type eventFile struct {
	StreamID string `yaml:"stream_id"`
	Version  int64  `yaml:"version"`
	Type     string `yaml:"type"`
	Data     any    `yaml:"data"`
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Append a domain event to its stream",
	Long: `Reads an event from a YAML file and appends it to the stream of its domain.
The event is decoded before publishing, so that a typo does not end up in the
dead-letter stream. Mostly useful for local testing and replays.`,
	Example: `  cat <<EOF | platform-state publish -c config.yaml -d agreement -f -
  stream_id: 6f3c...
  version: 2
  type: AgreementActivated
  data:
    agreement: { id: 6f3c..., state: Active, ... }
  EOF`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.IsDomain(publishDomain) {
			return fmt.Errorf("unknown domain '%s', expected one of %v", publishDomain, config.Domains)
		}
		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}

		raw, err := readFileOrStdin(publishFile)
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}
		var ev eventFile
		if err := yaml.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("parsing event: %w", err)
		}
		env, err := events.NewEnvelope(ev.StreamID, ev.Version, ev.Type, ev.Data)
		if err != nil {
			return err
		}
		if err := events.Validate(publishDomain, env); err != nil {
			if !publishForce {
				return fmt.Errorf("refusing to publish: %w", err)
			}
			log.Warn().Err(err).Msg("publishing an event the projectors will not apply")
		}

		client, err := stream.NewRedisClient(cmd.Context(), cfg.Stream)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
		}()

		id, err := stream.Publish(cmd.Context(), client, cfg.Stream, publishDomain, env)
		if err != nil {
			return logError(err, "", "failed to publish event")
		}
		logSuccess("published %s v%d to %s as %s", bold(env.Type), env.Version, cfg.Stream.StreamKey(publishDomain), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringVarP(&publishDomain, "domain", "d", "", "Domain of the event")
	publishCmd.Flags().StringVarP(&publishFile, "file", "f", "-", "YAML event file ('-' for stdin)")
	publishCmd.Flags().BoolVar(&publishForce, "force", false, "Publish even if the event does not decode")

	_ = publishCmd.MarkFlagRequired("domain")
}
