// Package deployments publishes named contract instances to an EVM network
// and keeps a record of each deployment so repeated runs are idempotent.
package deployments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/Bidon15/popdeploy/internal/artifacts"
	"github.com/Bidon15/popdeploy/internal/signer"
)

// GasLimitBufferPercent is added on top of estimated gas.
const GasLimitBufferPercent = 20

// Backend is the subset of ethclient.Client used for deployments.
type Backend interface {
	bind.DeployBackend
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// ArtifactSource resolves contract artifacts by name.
type ArtifactSource interface {
	Load(name string) (*artifacts.ContractArtifact, error)
}

// SignerResolver returns the signer that controls an address.
type SignerResolver interface {
	Signer(addr common.Address) (signer.Signer, error)
}

// DeployOptions configures a single Deploy call.
type DeployOptions struct {
	// From is the sending account.
	From common.Address
	// Args are the ordered constructor arguments.
	Args []interface{}
	// Log prints a one-line summary of the result.
	Log bool
	// Contract names the artifact when it differs from the deployment name.
	Contract string
	// Value is sent to a payable constructor.
	Value *big.Int
	// GasLimit overrides gas estimation when non-zero.
	GasLimit uint64
	// SkipIfAlreadyDeployed reuses any recorded deployment with code on
	// chain, even when its bytecode or arguments differ.
	SkipIfAlreadyDeployed bool
}

// Deployment is the result of Deploy.
type Deployment struct {
	Record
	// Reused is set when an identical deployment already existed.
	Reused bool
}

// Config holds the Manager's network settings.
type Config struct {
	Network              string
	ChainID              *big.Int
	GasPriceBoostPercent int
}

// Manager implements the deploy capability against one network.
type Manager struct {
	cfg       Config
	backend   Backend
	artifacts ArtifactSource
	signers   SignerResolver
	store     Store
	logger    *slog.Logger
	out       io.Writer
	runID     uuid.UUID
	now       func() time.Time
}

// NewManager creates a deployment manager. Summary lines requested with
// DeployOptions.Log are written to out.
func NewManager(
	cfg Config,
	backend Backend,
	artifactSource ArtifactSource,
	signers SignerResolver,
	store Store,
	logger *slog.Logger,
	out io.Writer,
) *Manager {
	if out == nil {
		out = io.Discard
	}
	return &Manager{
		cfg:       cfg,
		backend:   backend,
		artifacts: artifactSource,
		signers:   signers,
		store:     store,
		logger:    logger,
		out:       out,
		runID:     uuid.New(),
		now:       time.Now,
	}
}

// RunID identifies the records written by this manager.
func (m *Manager) RunID() uuid.UUID {
	return m.runID
}

// Get returns an existing deployment record.
func (m *Manager) Get(ctx context.Context, name string) (*Record, error) {
	return m.store.Get(ctx, m.cfg.Network, name)
}

// Deploy publishes contract name with opts. If the store already holds a
// deployment with the same bytecode and arguments whose code is still on
// chain, that deployment is returned instead.
func (m *Manager) Deploy(ctx context.Context, name string, opts DeployOptions) (*Deployment, error) {
	contract := opts.Contract
	if contract == "" {
		contract = name
	}

	artifact, err := m.artifacts.Load(contract)
	if err != nil {
		return nil, err
	}
	parsed, err := artifact.ParsedABI()
	if err != nil {
		return nil, err
	}
	code, err := artifact.CreationCode()
	if err != nil {
		return nil, err
	}
	bytecodeHash, err := artifact.BytecodeHash()
	if err != nil {
		return nil, err
	}

	argsData, coerced, err := EncodeConstructorArgs(parsed, opts.Args)
	if err != nil {
		return nil, fmt.Errorf("encode %s constructor: %w", name, err)
	}

	previous, err := m.store.Get(ctx, m.cfg.Network, name)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}
	if previous != nil {
		reused, err := m.reusable(ctx, previous, bytecodeHash, argsData, opts.SkipIfAlreadyDeployed)
		if err != nil {
			return nil, err
		}
		if reused {
			m.logger.Info("reusing existing deployment",
				slog.String("name", name),
				slog.String("address", previous.Address.Hex()),
			)
			if opts.Log {
				fmt.Fprintf(m.out, "reusing %q at %s\n", name, previous.Address.Hex())
			}
			return &Deployment{Record: *previous, Reused: true}, nil
		}
	}

	s, err := m.signers.Signer(opts.From)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownSigner, opts.From.Hex(), err)
	}

	data := append(append([]byte{}, code...), argsData...)
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := m.backend.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		estimated, err := m.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  opts.From,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas for %s: %w", name, err)
		}
		gasLimit = estimated * (100 + GasLimitBufferPercent) / 100
	}

	tx, err := m.buildTx(ctx, nonce, gasLimit, value, data)
	if err != nil {
		return nil, err
	}

	signedTx, err := s.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := m.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	m.logger.Info("deployment submitted, waiting for confirmation",
		slog.String("name", name),
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
	)

	receipt, err := bind.WaitMined(ctx, m.backend, signedTx)
	if err != nil {
		return nil, fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s (tx %s)", ErrTransactionReverted, name, signedTx.Hash().Hex())
	}

	address := crypto.CreateAddress(opts.From, nonce)
	if receipt.ContractAddress != (common.Address{}) {
		address = receipt.ContractAddress
	}

	deployed, err := m.backend.CodeAt(ctx, address, receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("get code at %s: %w", address.Hex(), err)
	}
	if len(deployed) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", ErrNoCode, name, address.Hex())
	}

	args := make([]string, len(coerced))
	for i, v := range coerced {
		args[i] = formatArg(v)
	}

	rec := &Record{
		Name:            name,
		Contract:        contract,
		Address:         address,
		ABI:             artifact.ABI,
		TransactionHash: signedTx.Hash(),
		GasUsed:         receipt.GasUsed,
		Deployer:        opts.From,
		Args:            args,
		ArgsData:        hexutil.Encode(argsData),
		BytecodeHash:    bytecodeHash,
		NumDeployments:  1,
		Network:         m.cfg.Network,
		ChainID:         m.cfg.ChainID.Uint64(),
		RunID:           m.runID,
		DeployedAt:      m.now().UTC(),
	}
	if receipt.BlockNumber != nil {
		rec.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if previous != nil {
		rec.NumDeployments = previous.NumDeployments + 1
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save %s record: %w", name, err)
	}

	m.logger.Info("contract deployed",
		slog.String("name", name),
		slog.String("address", address.Hex()),
		slog.Uint64("block_number", rec.BlockNumber),
		slog.Uint64("gas_used", rec.GasUsed),
	)
	if opts.Log {
		fmt.Fprintf(m.out, "deploying %q (tx: %s)...: deployed at %s with %d gas\n",
			name, signedTx.Hash().Hex(), address.Hex(), receipt.GasUsed)
	}

	return &Deployment{Record: *rec}, nil
}

// reusable reports whether prev matches the requested deployment and its code
// is still present on chain.
func (m *Manager) reusable(ctx context.Context, prev *Record, bytecodeHash string, argsData []byte, skipCompare bool) (bool, error) {
	if !skipCompare && (prev.BytecodeHash != bytecodeHash || prev.ArgsData != hexutil.Encode(argsData)) {
		m.logger.Debug("deployment changed, redeploying",
			slog.String("name", prev.Name),
			slog.String("previous_address", prev.Address.Hex()),
		)
		return false, nil
	}
	code, err := m.backend.CodeAt(ctx, prev.Address, nil)
	if err != nil {
		return false, fmt.Errorf("get code at %s: %w", prev.Address.Hex(), err)
	}
	if len(code) == 0 {
		m.logger.Warn("recorded deployment has no code, redeploying",
			slog.String("name", prev.Name),
			slog.String("address", prev.Address.Hex()),
		)
		return false, nil
	}
	return true, nil
}

// buildTx creates a contract-creation transaction, EIP-1559 when the chain
// reports a base fee and legacy otherwise.
func (m *Manager) buildTx(ctx context.Context, nonce, gasLimit uint64, value *big.Int, data []byte) (*types.Transaction, error) {
	head, err := m.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}

	if head.BaseFee != nil {
		tip, err := m.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("get gas tip: %w", err)
		}
		tip = m.boost(tip)
		feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   m.cfg.ChainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			Value:     value,
			Data:      data,
		}), nil
	}

	gasPrice, err := m.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: m.boost(gasPrice),
		Gas:      gasLimit,
		Value:    value,
		Data:     data,
	}), nil
}

func (m *Manager) boost(v *big.Int) *big.Int {
	if m.cfg.GasPriceBoostPercent <= 0 {
		return v
	}
	boosted := new(big.Int).Mul(v, big.NewInt(int64(100+m.cfg.GasPriceBoostPercent)))
	return boosted.Div(boosted, big.NewInt(100))
}
