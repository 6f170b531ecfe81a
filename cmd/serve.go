package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/api"
	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/stream"
)

var (
	serveAddr    string
	serveConsume bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the token endpoint and the admin API",
	Long: `Serves token issuance for client assertions validated against the Token
Generation States table. With --consume, the projectors run in the same
process and share its store; this is the only way to use the memory backend
with live events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = log.Logger.WithContext(ctx)

		backend, err := f.OpenBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		log.Info().Msg("Initializing token service...")
		tokenService, auditor, err := f.GetLocalService(cfg, backend)
		if err != nil {
			return err
		}
		defer func() {
			if err := auditor.Close(); err != nil {
				log.Warn().Err(err).Msg("closing auditor")
			}
		}()

		monitor := stream.NewMonitor()
		srv := api.NewServer(tokenService, backend.Stores.Platform, backend.Stores.Tokens, monitor, auditor)

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Routes([]byte(cfg.Server.AdminKey)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		consumersDone := make(chan error, 1)
		if serveConsume {
			go func() {
				consumersDone <- runConsumers(ctx, cfg, backend.Stores, monitor, config.Domains)
			}()
		} else {
			close(consumersDone)
		}

		go func() {
			log.Info().Msgf("Starting server on %s...", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Server crashed")
				stop()
			}
		}()

		<-ctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := <-consumersDone; err != nil {
			return err
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveConsume, "consume", false, "Also run the projectors for every domain")
}
