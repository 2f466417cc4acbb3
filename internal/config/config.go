// Package config loads popdeploy configuration from file, environment and
// flags via viper.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Bidon15/popdeploy/internal/units"
)

// Defaults
const (
	DefaultArtifactsDir   = "artifacts"
	DefaultDeploymentsDir = "deployments"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultNetworkTimeout = 10 * time.Minute
)

// Signer types
const (
	SignerTypeKey       = "key"
	SignerTypeKeystore  = "keystore"
	SignerTypePOPSigner = "popsigner"
)

var (
	ErrUnknownNetwork = errors.New("popdeploy: unknown network")
	ErrMissingSecret  = errors.New("popdeploy: secret environment variable not set")
)

// Config is the root configuration.
type Config struct {
	ArtifactsDir   string                            `mapstructure:"artifacts_dir" validate:"required"`
	DeploymentsDir string                            `mapstructure:"deployments_dir" validate:"required"`
	LogLevel       string                            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string                            `mapstructure:"log_format" validate:"oneof=text json"`
	Networks       map[string]Network                `mapstructure:"networks" validate:"required,min=1,dive"`
	NamedAccounts  map[string]map[string]interface{} `mapstructure:"named_accounts"`
}

// Network describes one target chain.
type Network struct {
	RPCURL               string         `mapstructure:"rpc_url" validate:"required,url"`
	ChainID              uint64         `mapstructure:"chain_id" validate:"required"`
	Timeout              time.Duration  `mapstructure:"timeout" validate:"gte=0"`
	GasPriceBoostPercent int            `mapstructure:"gas_price_boost_percent" validate:"gte=0,lte=500"`
	MinBalance           string         `mapstructure:"min_balance"`
	Signers              []SignerConfig `mapstructure:"signers" validate:"dive"`
}

// SignerConfig describes how to obtain one signing account. Secrets are never
// stored in the file; the config names environment variables holding them.
type SignerConfig struct {
	Type          string `mapstructure:"type" json:"type,omitempty" yaml:"type,omitempty" validate:"required,oneof=key keystore popsigner"`
	PrivateKeyEnv string `mapstructure:"private_key_env" json:"private_key_env,omitempty" yaml:"private_key_env,omitempty" validate:"required_if=Type key"`
	KeystorePath  string `mapstructure:"keystore_path" json:"keystore_path,omitempty" yaml:"keystore_path,omitempty" validate:"required_if=Type keystore"`
	PasswordEnv   string `mapstructure:"password_env" json:"password_env,omitempty" yaml:"password_env,omitempty" validate:"required_if=Type keystore"`
	Endpoint      string `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"required_if=Type popsigner,omitempty,url"`
	APIKeyEnv     string `mapstructure:"api_key_env" json:"api_key_env,omitempty" yaml:"api_key_env,omitempty" validate:"required_if=Type popsigner"`
	Address       string `mapstructure:"address" json:"address,omitempty" yaml:"address,omitempty" validate:"omitempty,eth_addr"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("artifacts_dir", DefaultArtifactsDir)
	v.SetDefault("deployments_dir", DefaultDeploymentsDir)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
}

// Load decodes and validates configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, name := range cfg.NetworkNames() {
		if _, err := cfg.Networks[name].MinBalanceWei(); err != nil {
			return nil, fmt.Errorf("invalid config: network %s min_balance: %w", name, err)
		}
	}

	return &cfg, nil
}

// MinBalanceWei returns min_balance, given in ether, as wei. It is nil when
// unset.
func (n Network) MinBalanceWei() (*big.Int, error) {
	if strings.TrimSpace(n.MinBalance) == "" {
		return nil, nil
	}
	return units.ParseEther(strings.TrimSpace(n.MinBalance))
}

// Network returns the named network with defaults applied.
func (c *Config) Network(name string) (Network, error) {
	n, ok := c.Networks[strings.ToLower(name)]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownNetwork, name, strings.Join(c.NetworkNames(), ", "))
	}
	if n.Timeout == 0 {
		n.Timeout = DefaultNetworkTimeout
	}
	return n, nil
}

// NetworkNames returns the configured network names, sorted.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Secret reads a secret from the environment variable envName.
func Secret(envName string) (string, error) {
	v := strings.TrimSpace(os.Getenv(envName))
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingSecret, envName)
	}
	return v, nil
}
