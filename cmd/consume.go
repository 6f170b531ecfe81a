package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/projector"
	"github.com/pagopa/interop-platform-state/internal/stream"
)

var consumeDomains []string

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the projectors on the configured event streams",
	Long: `Reads agreement, catalog, purpose and authorization events from their Redis
streams and applies them to the Platform States and Token Generation States tables.

Replicas sharing the same consumer group split the events between them.`,
	Example: `  # consume every domain
  platform-state consume -c config.yaml

  # only agreements and purposes
  platform-state consume -c config.yaml --domain agreement --domain purpose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}
		domains, err := selectDomains(consumeDomains)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = log.Logger.WithContext(ctx)

		backend, err := f.OpenBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		return runConsumers(ctx, cfg, backend.Stores, stream.NewMonitor(), domains)
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)

	consumeCmd.Flags().StringSliceVarP(&consumeDomains, "domain", "d", nil,
		fmt.Sprintf("Domains to consume (default all of %v)", config.Domains))
}

func selectDomains(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return config.Domains, nil
	}
	for _, d := range requested {
		if !config.IsDomain(d) {
			return nil, fmt.Errorf("unknown domain '%s', expected one of %v", d, config.Domains)
		}
	}
	return requested, nil
}

// runConsumers consumes every domain concurrently until ctx is cancelled.
func runConsumers(ctx context.Context, cfg *config.Config, stores projector.Stores, monitor *stream.Monitor, domains []string) error {
	client, err := stream.NewRedisClient(ctx, cfg.Stream)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	consumer := stream.NewConsumer(client, cfg.Stream, projector.NewDispatcher(stores), monitor)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, domain := range domains {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			if err := consumer.Run(ctx, domain); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("consuming %s: %w", domain, err))
				mu.Unlock()
			}
		}(domain)
	}

	log.Info().Strs("domains", domains).Str("consumer", cfg.Stream.Consumer).Msg("projectors started")
	wg.Wait()
	log.Info().Msg("projectors stopped")
	return errors.Join(errs...)
}
