// Package vault loads deployment secrets from a HashiCorp Vault KV v2 engine.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"github.com/BLINK-sys/Printer-WEB-APIServer/config"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// Secrets are the values the API server may keep out of its config file
type Secrets struct {
	JWTSecret        string `json:"jwt_secret"`
	DatabasePassword string `json:"db_password"`
	DatabaseURL      string `json:"database_url"`
	RedisPassword    string `json:"redis_password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	log    *logging.Logger

	mu     sync.RWMutex
	cached *Secrets
}

// NewClient creates a new Vault client. A disabled config yields a client
// whose reads return empty secrets.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{config: cfg, log: logging.WithComponent("vault")}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.client = client
	return c, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// ReadSecrets fetches the secret document at the configured KV v2 path
func (c *Client) ReadSecrets(ctx context.Context) (*Secrets, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return &Secrets{}, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.config.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secrets at %s", c.config.SecretPath)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", c.config.SecretPath)
	}

	secrets := &Secrets{
		JWTSecret:        getString(data, "jwt_secret"),
		DatabasePassword: getString(data, "db_password"),
		DatabaseURL:      getString(data, "database_url"),
		RedisPassword:    getString(data, "redis_password"),
	}

	c.mu.Lock()
	c.cached = secrets
	c.mu.Unlock()

	c.log.Info("Secrets loaded", "path", c.config.SecretPath)
	return secrets, nil
}

// Apply overwrites non-empty secret values in cfg
func (s *Secrets) Apply(cfg *config.Config) {
	if s.JWTSecret != "" {
		cfg.AuthConfig.JWTSecret = s.JWTSecret
	}
	if s.DatabasePassword != "" {
		cfg.DatabaseConfig.Password = s.DatabasePassword
	}
	if s.DatabaseURL != "" {
		cfg.DatabaseConfig.URL = s.DatabaseURL
	}
	if s.RedisPassword != "" {
		cfg.RedisConfig.Password = s.RedisPassword
	}
}

// LoadInto reads secrets and applies them to cfg when Vault is enabled
func LoadInto(ctx context.Context, cfg *config.Config) error {
	if !cfg.VaultConfig.Enabled {
		return nil
	}
	client, err := NewClient(cfg.VaultConfig)
	if err != nil {
		return err
	}
	secrets, err := client.ReadSecrets(ctx)
	if err != nil {
		return err
	}
	secrets.Apply(cfg)
	return nil
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}
