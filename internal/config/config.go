package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Indexes    IndexConfig      `yaml:"indexes"`
	Stream     StreamConfig     `yaml:"stream"`
	Validation ValidationConfig `yaml:"validation"`
	Issuer     IssuerConfig     `yaml:"issuer"`
	Audit      AuditConfig      `yaml:"audit"`
	Server     ServerConfig     `yaml:"server"`
}

// StoreConfig holds configuration for the projection store.
type StoreConfig struct {
	// Backend is either "memory" or "postgres".
	Backend string `yaml:"backend"`

	// DSN is the Postgres connection string. Required for the postgres backend.
	DSN string `yaml:"dsn"`

	// PlatformStatesTable is the table holding one entry per tracked aggregate.
	PlatformStatesTable string `yaml:"platform_states_table"`

	// TokenGenerationStatesTable is the table holding one entry per client key (and purpose).
	TokenGenerationStatesTable string `yaml:"token_generation_states_table"`

	// PageSize bounds how many rows a single index query returns.
	PageSize int `yaml:"page_size"`
}

// IndexConfig names the secondary indexes of both tables.
type IndexConfig struct {
	AgreementByConsumerEService string `yaml:"agreement_by_consumer_eservice"`

	TokenByConsumerEService   string `yaml:"token_by_consumer_eservice"`
	TokenByEServiceDescriptor string `yaml:"token_by_eservice_descriptor"`
	TokenByClient             string `yaml:"token_by_client"`
	TokenByClientPurpose      string `yaml:"token_by_client_purpose"`
	TokenByKid                string `yaml:"token_by_kid"`
	TokenByPurpose            string `yaml:"token_by_purpose"`
}

// StreamConfig holds configuration for the Redis Streams event runtime.
type StreamConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Group is the consumer group shared by all projector replicas of a domain.
	Group string `yaml:"group"`

	// Consumer is this replica's name within the group. Defaults to hostname.
	Consumer string `yaml:"consumer"`

	// Streams maps a domain (agreement, catalog, purpose, authorization) to its stream key.
	Streams map[string]string `yaml:"streams"`

	BatchSize int           `yaml:"batch_size"`
	Block     time.Duration `yaml:"block"`

	// Backoff is how long a failed message stays pending before it is re-claimed.
	Backoff time.Duration `yaml:"backoff"`
}

// ValidationConfig holds the client assertion expectations.
type ValidationConfig struct {
	// Audiences are accepted values of the assertion "aud" claim.
	Audiences []string `yaml:"audiences"`

	// Algorithms are the accepted signature algorithms. Defaults to RS256.
	Algorithms []string `yaml:"algorithms"`

	// Leeway tolerates clock skew on exp/iat/nbf.
	Leeway time.Duration `yaml:"leeway"`
}

// IssuerConfig holds configuration for the token issuer.
type IssuerConfig struct {
	// Name is written into the "iss" claim.
	Name string `yaml:"name"`

	// KeyID is the kid of the signing key, as known to the signer.
	KeyID string `yaml:"kid"`

	// Algorithm is the JWS algorithm of the signing key.
	Algorithm string `yaml:"algorithm"`

	// Signer selects the signer implementation, currently only "local".
	Signer string `yaml:"signer"`

	// Options are signer specific, e.g. { private_key_path: ... } for "local".
	Options map[string]any `yaml:"options"`

	// APIAudience is the audience of tokens issued to API clients.
	APIAudience []string `yaml:"api_audience"`

	// APIVoucherLifespan is the lifetime of tokens issued to API clients.
	APIVoucherLifespan time.Duration `yaml:"api_voucher_lifespan"`
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // e.g., "file", "memory"
}

type ServerConfig struct {
	Addr string `yaml:"addr"`

	// AdminKey is the HMAC key operator tokens are signed with.
	// Admin routes are not mounted without it.
	AdminKey string `yaml:"admin_key"`
}

// Default returns a configuration usable with the memory backend.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Store.Backend, BackendMemory)
	setDefault(&c.Store.PlatformStatesTable, "platform_states")
	setDefault(&c.Store.TokenGenerationStatesTable, "token_generation_states")
	if c.Store.PageSize <= 0 {
		c.Store.PageSize = 100
	}

	setDefault(&c.Indexes.AgreementByConsumerEService, "agreement-by-consumer-eservice")
	setDefault(&c.Indexes.TokenByConsumerEService, "token-by-consumer-eservice")
	setDefault(&c.Indexes.TokenByEServiceDescriptor, "token-by-eservice-descriptor")
	setDefault(&c.Indexes.TokenByClient, "token-by-client")
	setDefault(&c.Indexes.TokenByClientPurpose, "token-by-client-purpose")
	setDefault(&c.Indexes.TokenByKid, "token-by-kid")
	setDefault(&c.Indexes.TokenByPurpose, "token-by-purpose")

	setDefault(&c.Stream.RedisAddr, "localhost:6379")
	setDefault(&c.Stream.Group, "platform-state-projectors")
	if c.Stream.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "projector"
		}
		c.Stream.Consumer = host
	}
	if c.Stream.BatchSize <= 0 {
		c.Stream.BatchSize = 50
	}
	if c.Stream.Block <= 0 {
		c.Stream.Block = 5 * time.Second
	}
	if c.Stream.Backoff <= 0 {
		c.Stream.Backoff = 30 * time.Second
	}

	if len(c.Validation.Algorithms) == 0 {
		c.Validation.Algorithms = []string{"RS256"}
	}

	setDefault(&c.Issuer.Algorithm, "RS256")
	setDefault(&c.Issuer.Signer, "local")
	if c.Issuer.APIVoucherLifespan <= 0 {
		c.Issuer.APIVoucherLifespan = 10 * time.Minute
	}

	setDefault(&c.Server.Addr, ":8080")
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend '%s'", c.Store.Backend)
	}
	if c.Store.PlatformStatesTable == c.Store.TokenGenerationStatesTable {
		return fmt.Errorf("platform states and token generation states must be different tables")
	}

	seen := make(map[string]struct{})
	for _, name := range []string{
		c.Indexes.TokenByConsumerEService,
		c.Indexes.TokenByEServiceDescriptor,
		c.Indexes.TokenByClient,
		c.Indexes.TokenByClientPurpose,
		c.Indexes.TokenByKid,
		c.Indexes.TokenByPurpose,
	} {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("token generation index name '%s' is not unique", name)
		}
		seen[name] = struct{}{}
	}

	for domain := range c.Stream.Streams {
		if !IsDomain(domain) {
			return fmt.Errorf("stream configured for unknown domain '%s'", domain)
		}
	}

	if len(c.Validation.Audiences) == 0 {
		return fmt.Errorf("validation.audiences must not be empty")
	}
	return nil
}

// Domains are the event domains a projector can consume.
var Domains = []string{"agreement", "catalog", "purpose", "authorization"}

func IsDomain(s string) bool {
	for _, d := range Domains {
		if d == s {
			return true
		}
	}
	return false
}

// StreamKey returns the stream key of a domain, defaulting to "events:<domain>".
func (c *StreamConfig) StreamKey(domain string) string {
	if key, ok := c.Streams[domain]; ok && key != "" {
		return key
	}
	return "events:" + domain
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
