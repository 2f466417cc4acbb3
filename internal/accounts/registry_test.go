package accounts

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/popdeploy/internal/config"
	"github.com/Bidon15/popdeploy/internal/signer"
)

const (
	key0 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	key1 = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

	addr0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	addr1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

var chainID = big.NewInt(31337)

func testSigners(t *testing.T) []signer.Signer {
	t.Helper()
	s0, err := signer.NewLocal(key0, chainID)
	require.NoError(t, err)
	s1, err := signer.NewLocal(key1, chainID)
	require.NoError(t, err)
	return []signer.Signer{s0, s1}
}

func TestNamedAccounts(t *testing.T) {
	named := map[string]map[string]interface{}{
		"deployer":    {"default": 0, "sepolia": 1},
		"treasury":    {"default": "0xCfEF4B3F7B2a606a0Ed5c2C2C933973B224baa4a"},
		"admin":       {"default": "1"},
		"sepoliaonly": {"sepolia": 0},
	}

	tests := []struct {
		network string
		want    map[string]common.Address
	}{
		{
			network: "localhost",
			want: map[string]common.Address{
				"deployer": common.HexToAddress(addr0),
				"treasury": common.HexToAddress("0xCfEF4B3F7B2a606a0Ed5c2C2C933973B224baa4a"),
				"admin":    common.HexToAddress(addr1),
			},
		},
		{
			network: "sepolia",
			want: map[string]common.Address{
				"deployer":    common.HexToAddress(addr1),
				"treasury":    common.HexToAddress("0xCfEF4B3F7B2a606a0Ed5c2C2C933973B224baa4a"),
				"admin":       common.HexToAddress(addr1),
				"sepoliaonly": common.HexToAddress(addr0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			r := NewRegistry(tt.network, named, testSigners(t))
			got, err := r.NamedAccounts(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNamedAccounts_Errors(t *testing.T) {
	tests := []struct {
		name  string
		entry interface{}
	}{
		{name: "index out of range", entry: 5},
		{name: "negative index", entry: -1},
		{name: "bad address", entry: "0x1234"},
		{name: "fractional index", entry: 1.5},
		{name: "unsupported type", entry: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry("localhost", map[string]map[string]interface{}{
				"deployer": {"default": tt.entry},
			}, testSigners(t))
			_, err := r.NamedAccounts(context.Background())
			assert.ErrorIs(t, err, ErrUnknownAccount)
		})
	}
}

func TestRegistry_Signer(t *testing.T) {
	signers := testSigners(t)
	r := NewRegistry("localhost", nil, signers)

	s, err := r.Signer(common.HexToAddress(addr1))
	require.NoError(t, err)
	assert.Same(t, signers[1], s)

	_, err = r.Signer(common.HexToAddress("0xCfEF4B3F7B2a606a0Ed5c2C2C933973B224baa4a"))
	assert.ErrorIs(t, err, ErrUnknownSigner)

	assert.Len(t, r.Signers(), 2)
}

func TestRoles(t *testing.T) {
	r := NewRegistry("x", map[string]map[string]interface{}{
		"treasury": {"default": 0},
		"deployer": {"default": 0},
	}, nil)
	assert.Equal(t, []string{"deployer", "treasury"}, r.Roles())
}

func TestLoadSigners(t *testing.T) {
	t.Setenv("TEST_DEPLOYER_KEY", key0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signers, err := LoadSigners(context.Background(), []config.SignerConfig{
		{Type: config.SignerTypeKey, PrivateKeyEnv: "TEST_DEPLOYER_KEY"},
	}, chainID, logger)
	require.NoError(t, err)
	require.Len(t, signers, 1)
	assert.Equal(t, common.HexToAddress(addr0), signers[0].Address())

	_, err = LoadSigners(context.Background(), []config.SignerConfig{
		{Type: config.SignerTypeKey, PrivateKeyEnv: "TEST_UNSET_KEY"},
	}, chainID, logger)
	assert.ErrorIs(t, err, config.ErrMissingSecret)
}
