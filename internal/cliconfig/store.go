// Package cliconfig stores operator tokens per server for the command line client.
package cliconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

var ErrCredentialNotFound = errors.New("credential not found")

type Credential struct {
	Token string `yaml:"token"`
}

type CLIConfig struct {
	// Credentials are keyed by server host.
	Credentials map[string]*Credential `yaml:"credentials"`
}

// GetConfigPath returns the credentials file path. PLATFORMSTATE_CREDENTIALS overrides it.
func GetConfigPath() (string, error) {
	if path := os.Getenv("PLATFORMSTATE_CREDENTIALS"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ".platform-state", "credentials.yaml"), nil
}

// Load reads the credentials file. A missing file yields an empty config.
func Load() (*CLIConfig, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &CLIConfig{Credentials: map[string]*Credential{}}, nil
		}
		return nil, fmt.Errorf("reading credentials file '%s': %w", path, err)
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding credentials file '%s': %w", path, err)
	}
	if cfg.Credentials == nil {
		cfg.Credentials = map[string]*Credential{}
	}
	return &cfg, nil
}

func Save(cfg *CLIConfig) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory '%s': %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing credentials file '%s': %w", path, err)
	}
	return nil
}

func hostOf(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing server URL '%s': %w", server, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL '%s' has no host", server)
	}
	return u.Host, nil
}

func (c *CLIConfig) GetCredential(server string) (*Credential, error) {
	host, err := hostOf(server)
	if err != nil {
		return nil, err
	}
	cred, ok := c.Credentials[host]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return cred, nil
}

// SetCredential stores token for the host of server, replacing any previous one.
func (c *CLIConfig) SetCredential(server, token string) error {
	host, err := hostOf(server)
	if err != nil {
		return err
	}
	if c.Credentials == nil {
		c.Credentials = map[string]*Credential{}
	}
	c.Credentials[host] = &Credential{Token: token}
	return nil
}

// RemoveCredential forgets the token of server and reports whether one was stored.
func (c *CLIConfig) RemoveCredential(server string) (bool, error) {
	host, err := hostOf(server)
	if err != nil {
		return false, err
	}
	_, ok := c.Credentials[host]
	delete(c.Credentials, host)
	return ok, nil
}
