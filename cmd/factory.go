package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pagopa/interop-platform-state/internal/audit"
	"github.com/pagopa/interop-platform-state/internal/cliconfig"
	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/issuer"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/projector"
	"github.com/pagopa/interop-platform-state/internal/service"
	"github.com/pagopa/interop-platform-state/internal/store"
	"github.com/pagopa/interop-platform-state/internal/tokenstate"
	"github.com/pagopa/interop-platform-state/internal/validation"
	"github.com/pagopa/interop-platform-state/pkg/client"
)

type Factory struct {
	// RemoteAddr is the address of the platform-state server to connect to.
	RemoteAddr string

	// ConfigPath is the service configuration: stores, streams, validation and issuer.
	ConfigPath string
}

func NewFactory() *Factory {
	return &Factory{}
}

// GetClient returns an authenticated HTTP client for remote operations.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.RemoteAddr // prio 1: command-line flag
	if server == "" {
		server = viper.GetString(ServerAddrKey) // prio 2: config/env
	}
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set PLATFORMSTATE_SERVER)")
	}

	var token string
	if cfg, err := cliconfig.Load(); err == nil {
		if cred, err := cfg.GetCredential(server); err == nil { // token prio 1: saved credential
			token = cred.Token
		}
	} else {
		log.Warn().Err(err).Msg("could not load saved credentials")
	}

	if envToken := viper.GetString(AdminTokenKey); envToken != "" { // token prio 2: env var
		token = envToken
	}

	return client.New(server, client.WithAuthToken(token)), nil
}

// IsRemote reports whether commands should talk to a server instead of the local stores.
func (f *Factory) IsRemote() bool {
	return f.RemoteAddr != ""
}

func (f *Factory) LoadConfig() (*config.Config, error) {
	if f.ConfigPath == "" {
		return nil, fmt.Errorf("config file not specified (use --config or set PLATFORMSTATE_CONFIG)")
	}
	return config.Load(f.ConfigPath)
}

// Backend holds both repositories and the tables behind them.
type Backend struct {
	Stores projector.Stores

	tables []core.Table
	pool   *pgxpool.Pool
}

// OpenBackend connects the tables selected by cfg.Store.
func (f *Factory) OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	platformIndexes := platformstate.Indexes(cfg.Indexes.AgreementByConsumerEService)
	tokenIndexes := tokenstate.IndexesFromConfig(cfg.Indexes)

	b := &Backend{}
	var platformTable, tokenTable core.Table

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := store.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		b.pool = pool

		pt, err := store.NewPostgresTable(pool, cfg.Store.PlatformStatesTable, cfg.Store.PageSize, platformIndexes...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		tt, err := store.NewPostgresTable(pool, cfg.Store.TokenGenerationStatesTable, cfg.Store.PageSize, tokenIndexes.Definitions()...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		platformTable, tokenTable = pt, tt
	default:
		log.Warn().Msg("using the in-memory store, state is lost on exit")
		platformTable = store.NewMemoryTable(cfg.Store.PlatformStatesTable, cfg.Store.PageSize, platformIndexes...)
		tokenTable = store.NewMemoryTable(cfg.Store.TokenGenerationStatesTable, cfg.Store.PageSize, tokenIndexes.Definitions()...)
	}

	b.tables = []core.Table{platformTable, tokenTable}
	b.Stores = projector.Stores{
		Platform: platformstate.New(platformTable, cfg.Indexes.AgreementByConsumerEService),
		Tokens:   tokenstate.New(tokenTable, tokenIndexes),
	}
	return b, nil
}

type migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Migrate creates the tables and indexes of backends that need it.
func (b *Backend) Migrate(ctx context.Context) error {
	for _, t := range b.tables {
		m, ok := t.(migrator)
		if !ok {
			log.Info().Msgf("%T needs no migration", t)
			continue
		}
		if err := m.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Str("table", m.Name()).Msg("table migrated")
	}
	return nil
}

func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// GetLocalService builds the token service over the backend tables.
// The returned auditor must be closed by the caller.
func (f *Factory) GetLocalService(cfg *config.Config, b *Backend) (*service.TokenService, core.Auditor, error) {
	signer, err := issuer.NewSigner(cfg.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("building signer: %w", err)
	}
	auditor, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("building auditor: %w", err)
	}
	svc := service.NewTokenService(
		validation.New(b.Stores.Tokens, cfg.Validation),
		issuer.New(cfg.Issuer, signer),
		auditor,
	)
	return svc, auditor, nil
}

func (f *Factory) bindConfigFlag(flags *pflag.FlagSet) {
	flags.StringVarP(&f.ConfigPath, "config", "c", "", "The platform-state service config file to use")
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
