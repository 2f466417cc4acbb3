package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
artifacts_dir: build/artifacts
networks:
  sepolia:
    rpc_url: https://rpc.sepolia.org
    chain_id: 11155111
    timeout: 5m
    gas_price_boost_percent: 10
    signers:
      - type: key
        private_key_env: DEPLOYER_PRIVATE_KEY
      - type: popsigner
        endpoint: https://rpc.popsigner.com
        api_key_env: POPSIGNER_API_KEY
        address: "0xCfEF4B3F7B2a606a0Ed5c2C2C933973B224baa4a"
  localhost:
    rpc_url: http://127.0.0.1:8545
    chain_id: 31337
named_accounts:
  deployer:
    default: 0
    sepolia: 1
`

func loadString(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "popdeploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return Load(v)
}

func TestLoad(t *testing.T) {
	cfg, err := loadString(t, sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "build/artifacts", cfg.ArtifactsDir)
	assert.Equal(t, DefaultDeploymentsDir, cfg.DeploymentsDir)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, []string{"localhost", "sepolia"}, cfg.NetworkNames())

	sepolia, err := cfg.Network("sepolia")
	require.NoError(t, err)
	assert.Equal(t, uint64(11155111), sepolia.ChainID)
	assert.Equal(t, 5*time.Minute, sepolia.Timeout)
	assert.Equal(t, 10, sepolia.GasPriceBoostPercent)
	require.Len(t, sepolia.Signers, 2)
	assert.Equal(t, SignerTypePOPSigner, sepolia.Signers[1].Type)

	local, err := cfg.Network("LOCALHOST")
	require.NoError(t, err)
	assert.Equal(t, DefaultNetworkTimeout, local.Timeout)

	require.Contains(t, cfg.NamedAccounts, "deployer")
	assert.EqualValues(t, 0, cfg.NamedAccounts["deployer"]["default"])
	assert.EqualValues(t, 1, cfg.NamedAccounts["deployer"]["sepolia"])
}

func TestLoad_UnknownNetwork(t *testing.T) {
	cfg, err := loadString(t, sampleConfig)
	require.NoError(t, err)

	_, err = cfg.Network("mainnet")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
	assert.Contains(t, err.Error(), "localhost, sepolia")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no networks",
			content: "artifacts_dir: a\n",
		},
		{
			name: "missing rpc url",
			content: `
networks:
  dev:
    chain_id: 1
`,
		},
		{
			name: "key signer without env",
			content: `
networks:
  dev:
    rpc_url: http://localhost:8545
    chain_id: 1
    signers:
      - type: key
`,
		},
		{
			name: "unknown signer type",
			content: `
networks:
  dev:
    rpc_url: http://localhost:8545
    chain_id: 1
    signers:
      - type: ledger
`,
		},
		{
			name: "bad log level",
			content: `
log_level: verbose
networks:
  dev:
    rpc_url: http://localhost:8545
    chain_id: 1
`,
		},
		{
			name: "bad signer address",
			content: `
networks:
  dev:
    rpc_url: http://localhost:8545
    chain_id: 1
    signers:
      - type: popsigner
        endpoint: https://rpc.popsigner.com
        api_key_env: KEY
        address: "0x1234"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadString(t, tt.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestSecret(t *testing.T) {
	t.Setenv("POPDEPLOY_TEST_SECRET", " s3cret ")
	v, err := Secret("POPDEPLOY_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = Secret("POPDEPLOY_TEST_SECRET_UNSET")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestNetwork_MinBalance(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantWei string
		wantErr bool
	}{
		{name: "unset"},
		{name: "whole ether", value: "2", wantWei: "2000000000000000000"},
		{name: "fraction", value: "0.05", wantWei: "50000000000000000"},
		{name: "negative", value: "-1", wantErr: true},
		{name: "garbage", value: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `
networks:
  localhost:
    rpc_url: http://127.0.0.1:8545
    chain_id: 31337
`
			if tt.value != "" {
				content += "    min_balance: \"" + tt.value + "\"\n"
			}

			cfg, err := loadString(t, content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			n, err := cfg.Network("localhost")
			require.NoError(t, err)
			got, err := n.MinBalanceWei()
			require.NoError(t, err)
			if tt.wantWei == "" {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.wantWei, got.String())
		})
	}
}
