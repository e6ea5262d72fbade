package config

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled    bool   // Enable Vault integration
	Address    string // Vault server address
	Token      string // Vault authentication token
	MountPath  string // Secrets mount path (default: "secret")
	SecretPath string // Base path for fluxtrader secrets (e.g., "fluxtrader/production")
}

// VaultClient wraps HashiCorp Vault client for secrets management
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// GetVaultConfigFromEnv builds a VaultConfig from environment variables.
// Vault is enabled only when VAULT_ADDR is set.
func GetVaultConfigFromEnv() VaultConfig {
	addr := os.Getenv("VAULT_ADDR")
	return VaultConfig{
		Enabled:    addr != "",
		Address:    addr,
		Token:      os.Getenv("VAULT_TOKEN"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "fluxtrader"),
	}
}

// NewVaultClient creates a new Vault client from configuration
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(cfg.Token)

	log.Info().
		Str("address", cfg.Address).
		Str("mount_path", cfg.MountPath).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")

	return &VaultClient{client: client, config: cfg}, nil
}

// GetSecret retrieves a secret from Vault. path is relative to SecretPath.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	// KV v2 nests secrets under "data"
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// LoadSecretsFromVault overlays Vault-held secrets onto the configuration.
// Missing paths are logged and skipped; environment values stay in place.
func LoadSecretsFromVault(ctx context.Context, cfg *Config, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Info().Msg("Vault integration disabled - using environment variables for secrets")
		return nil
	}

	vc, err := NewVaultClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	if secrets, err := vc.GetSecret(ctx, "database"); err == nil {
		if url, ok := secrets["url"].(string); ok && url != "" {
			cfg.Database.URL = url
		}
	} else {
		log.Warn().Err(err).Msg("Failed to load database secrets from Vault")
	}

	if secrets, err := vc.GetSecret(ctx, "sources"); err == nil {
		if key, ok := secrets["microblog_key"].(string); ok && key != "" {
			cfg.Sentiment.MicroblogKey = key
		}
	} else {
		log.Warn().Err(err).Msg("Failed to load source API keys from Vault")
	}

	if secrets, err := vc.GetSecret(ctx, "alerts"); err == nil {
		if token, ok := secrets["telegram_token"].(string); ok && token != "" {
			cfg.Alerts.TelegramToken = token
		}
	} else {
		log.Warn().Err(err).Msg("Failed to load alert secrets from Vault")
	}

	log.Info().Msg("Secrets loaded from Vault")
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
