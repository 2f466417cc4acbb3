package deployments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/popdeploy/internal/artifacts"
	"github.com/Bidon15/popdeploy/internal/signer"
)

const (
	devKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	saleABI = `[{"inputs":[{"name":"token","type":"address"},{"name":"treasury","type":"address"},{"name":"rate","type":"uint256"},{"name":"bps","type":"uint256"},{"name":"cap","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"}]`

	tokenAddr    = "0x28cb21bd49351699C0414CF18BEE720BC64CcB7c"
	treasuryAddr = "0xCfEF4B3F7B2a606a0Ed5c2C2C933973B224baa4a"
)

var testChainID = big.NewInt(31337)

type fakeBackend struct {
	mu          sync.Mutex
	from        common.Address
	baseFee     *big.Int
	nonce       uint64
	gasEstimate uint64
	revert      bool
	noCode      bool
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
	code        map[common.Address][]byte
}

func newFakeBackend(from common.Address) *fakeBackend {
	return &fakeBackend{
		from:        from,
		nonce:       3,
		gasEstimate: 1_000_000,
		receipts:    make(map[common.Hash]*types.Receipt),
		code:        make(map[common.Address][]byte),
	}
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) CodeAt(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code[addr], nil
}

func (f *fakeBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(99), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return f.gasEstimate, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := types.ReceiptStatusSuccessful
	if f.revert {
		status = types.ReceiptStatusFailed
	} else if !f.noCode {
		f.code[crypto.CreateAddress(f.from, tx.Nonce())] = []byte{0x60, 0x80}
	}
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(100 + len(f.sent))),
		GasUsed:     1_234_567,
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

type mapArtifacts map[string]*artifacts.ContractArtifact

func (m mapArtifacts) Load(name string) (*artifacts.ContractArtifact, error) {
	a, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", artifacts.ErrArtifactNotFound, name)
	}
	return a, nil
}

type mapSigners map[common.Address]signer.Signer

func (m mapSigners) Signer(addr common.Address) (signer.Signer, error) {
	s, ok := m[addr]
	if !ok {
		return nil, errors.New("not configured")
	}
	return s, nil
}

type harness struct {
	manager *Manager
	backend *fakeBackend
	store   *MemoryStore
	out     *bytes.Buffer
	from    common.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := signer.NewLocal(devKey, testChainID)
	require.NoError(t, err)

	backend := newFakeBackend(s.Address())
	store := NewMemoryStore()
	out := &bytes.Buffer{}
	source := mapArtifacts{
		"IDOSale": {ContractName: "IDOSale", ABI: []byte(saleABI), Bytecode: artifacts.Bytecode{Object: "0x6080604052"}},
		"APD":     {ContractName: "APD", ABI: []byte(`[]`), Bytecode: artifacts.Bytecode{Object: "0x60aa"}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := NewManager(Config{Network: "testnet", ChainID: testChainID}, backend, source,
		mapSigners{s.Address(): s}, store, logger, out)
	return &harness{manager: m, backend: backend, store: store, out: out, from: s.Address()}
}

func saleArgs(purchaseCap int64) []interface{} {
	return []interface{}{tokenAddr, treasuryAddr, 6666700, 5155, big.NewInt(purchaseCap)}
}

func TestDeploy_Legacy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(1000), Log: true})
	require.NoError(t, err)
	require.Len(t, h.backend.sent, 1)

	tx := h.backend.sent[0]
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Nil(t, tx.To())
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(1_200_000), tx.Gas(), "estimate plus 20%")
	assert.Equal(t, big.NewInt(2_000_000_000), tx.GasPrice())
	assert.Len(t, tx.Data(), 5+5*32)

	assert.False(t, d.Reused)
	assert.Equal(t, crypto.CreateAddress(h.from, 3), d.Address)
	assert.Equal(t, h.from, d.Deployer)
	assert.Equal(t, []string{tokenAddr, treasuryAddr, "6666700", "5155", "1000"}, d.Args)
	assert.Equal(t, 1, d.NumDeployments)
	assert.Equal(t, uint64(31337), d.ChainID)
	assert.Equal(t, h.manager.RunID(), d.RunID)
	assert.Equal(t, uint64(1_234_567), d.GasUsed)

	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, h.from, from)

	assert.Equal(t,
		fmt.Sprintf("deploying \"IDOSale\" (tx: %s)...: deployed at %s with 1234567 gas\n", tx.Hash().Hex(), d.Address.Hex()),
		h.out.String())

	rec, err := h.manager.Get(ctx, "IDOSale")
	require.NoError(t, err)
	assert.Equal(t, d.Address, rec.Address)
}

func TestDeploy_DynamicFee(t *testing.T) {
	h := newHarness(t)
	h.backend.baseFee = big.NewInt(10_000_000_000)

	_, err := h.manager.Deploy(context.Background(), "APD", DeployOptions{From: h.from, GasLimit: 300_000})
	require.NoError(t, err)
	require.Len(t, h.backend.sent, 1)

	tx := h.backend.sent[0]
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(300_000), tx.Gas())
	assert.Equal(t, big.NewInt(1_000_000_000), tx.GasTipCap())
	assert.Equal(t, big.NewInt(21_000_000_000), tx.GasFeeCap())
	assert.Empty(t, h.out.String(), "log disabled")
}

func TestDeploy_GasPriceBoost(t *testing.T) {
	h := newHarness(t)
	h.manager.cfg.GasPriceBoostPercent = 50

	_, err := h.manager.Deploy(context.Background(), "APD", DeployOptions{From: h.from})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3_000_000_000), h.backend.sent[0].GasPrice())
}

func TestDeploy_ReusesIdenticalDeployment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(1000)})
	require.NoError(t, err)

	h.out.Reset()
	second, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(1000), Log: true})
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Address, second.Address)
	assert.Len(t, h.backend.sent, 1, "no second transaction")
	assert.Equal(t, fmt.Sprintf("reusing \"IDOSale\" at %s\n", first.Address.Hex()), h.out.String())
}

func TestDeploy_RedeploysWhenArgsChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(1000)})
	require.NoError(t, err)

	second, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(2000)})
	require.NoError(t, err)

	assert.False(t, second.Reused)
	assert.NotEqual(t, first.Address, second.Address)
	assert.Equal(t, 2, second.NumDeployments)
	assert.Len(t, h.backend.sent, 2)
}

func TestDeploy_SkipIfAlreadyDeployed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(1000)})
	require.NoError(t, err)

	second, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{
		From:                  h.from,
		Args:                  saleArgs(2000),
		SkipIfAlreadyDeployed: true,
	})
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Address, second.Address)
	assert.Len(t, h.backend.sent, 1)
}

func TestDeploy_RedeploysWhenCodeMissing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(1000)})
	require.NoError(t, err)

	// Simulate a chain reset.
	delete(h.backend.code, first.Address)

	second, err := h.manager.Deploy(ctx, "IDOSale", DeployOptions{From: h.from, Args: saleArgs(1000)})
	require.NoError(t, err)
	assert.False(t, second.Reused)
	assert.Len(t, h.backend.sent, 2)
}

func TestDeploy_Reverted(t *testing.T) {
	h := newHarness(t)
	h.backend.revert = true

	_, err := h.manager.Deploy(context.Background(), "APD", DeployOptions{From: h.from})
	assert.ErrorIs(t, err, ErrTransactionReverted)

	_, err = h.manager.Get(context.Background(), "APD")
	assert.ErrorIs(t, err, ErrRecordNotFound, "reverted deployments are not recorded")
}

func TestDeploy_NoCodeAfterMining(t *testing.T) {
	h := newHarness(t)
	h.backend.noCode = true

	_, err := h.manager.Deploy(context.Background(), "APD", DeployOptions{From: h.from})
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Len(t, h.backend.sent, 1)

	_, err = h.manager.Get(context.Background(), "APD")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDeploy_SkipIfAlreadyDeployed_BytecodeChanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.manager.Deploy(ctx, "APD", DeployOptions{From: h.from})
	require.NoError(t, err)

	h.manager.artifacts.(mapArtifacts)["APD"].Bytecode = artifacts.Bytecode{Object: "0x60bb"}

	second, err := h.manager.Deploy(ctx, "APD", DeployOptions{From: h.from, SkipIfAlreadyDeployed: true})
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Address, second.Address)
	assert.Len(t, h.backend.sent, 1)
}

func TestDeploy_Errors(t *testing.T) {
	tests := []struct {
		name     string
		contract string
		opts     func(h *harness) DeployOptions
		wantErr  error
	}{
		{
			name:     "unknown signer",
			contract: "APD",
			opts: func(h *harness) DeployOptions {
				return DeployOptions{From: common.HexToAddress(treasuryAddr)}
			},
			wantErr: ErrUnknownSigner,
		},
		{
			name:     "missing artifact",
			contract: "Missing",
			opts:     func(h *harness) DeployOptions { return DeployOptions{From: h.from} },
			wantErr:  artifacts.ErrArtifactNotFound,
		},
		{
			name:     "too few args",
			contract: "IDOSale",
			opts: func(h *harness) DeployOptions {
				return DeployOptions{From: h.from, Args: []interface{}{tokenAddr}}
			},
			wantErr: ErrArgCount,
		},
		{
			name:     "bad checksum",
			contract: "IDOSale",
			opts: func(h *harness) DeployOptions {
				args := saleArgs(1)
				args[0] = "0x28CB21bd49351699C0414CF18BEE720BC64CcB7c"
				return DeployOptions{From: h.from, Args: args}
			},
			wantErr: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.manager.Deploy(context.Background(), tt.contract, tt.opts(h))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, h.backend.sent)
		})
	}
}

func TestDeploy_ContractOverride(t *testing.T) {
	h := newHarness(t)

	d, err := h.manager.Deploy(context.Background(), "APD_v2", DeployOptions{From: h.from, Contract: "APD"})
	require.NoError(t, err)
	assert.Equal(t, "APD_v2", d.Name)
	assert.Equal(t, "APD", d.Contract)
}
