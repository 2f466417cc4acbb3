// Package preflight provides pre-deployment validation checks.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Bidon15/popdeploy/internal/units"
)

// DefaultTimeout is the default timeout for RPC calls.
const DefaultTimeout = 10 * time.Second

// ErrChainIDMismatch is returned by Response.Err when the node serves a
// different chain than the one configured.
var ErrChainIDMismatch = errors.New("popdeploy: chain id mismatch")

// ErrPreflightFailed is returned by Response.Err when any other check fails.
var ErrPreflightFailed = errors.New("popdeploy: preflight checks failed")

// CheckName identifies a specific pre-flight check.
type CheckName string

const (
	// CheckNodeReachable verifies the RPC endpoint answers.
	CheckNodeReachable CheckName = "node_reachable"
	// CheckChainIDMatch verifies the chain ID matches the configured value.
	CheckChainIDMatch CheckName = "chain_id_match"
	// CheckSignerBalance verifies a signer has funds to pay for gas.
	CheckSignerBalance CheckName = "signer_balance"
)

// Backend is the subset of ethclient.Client the checks need.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// CheckResult represents the result of a single pre-flight check.
type CheckResult struct {
	Name    CheckName              `json:"name"`
	Passed  bool                   `json:"passed"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Request contains the parameters for pre-flight checks.
type Request struct {
	ChainID uint64           `json:"chain_id"`
	Signers []common.Address `json:"signers"`
	// MinBalance is the balance each signer must hold. Zero means any
	// positive balance.
	MinBalance *big.Int `json:"min_balance,omitempty"`
}

// Response contains the results of all pre-flight checks.
type Response struct {
	OK     bool          `json:"ok"`
	Checks []CheckResult `json:"checks"`
}

// Err summarises a failed response as an error, or nil when all checks passed.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	for _, c := range r.Checks {
		if !c.Passed && c.Name == CheckChainIDMatch {
			return fmt.Errorf("%w: %s", ErrChainIDMismatch, c.Message)
		}
	}
	for _, c := range r.Checks {
		if !c.Passed {
			return fmt.Errorf("%w: %s", ErrPreflightFailed, c.Message)
		}
	}
	return ErrPreflightFailed
}

// Checker performs pre-flight validation checks.
type Checker struct {
	backend Backend
	timeout time.Duration
}

// NewChecker creates a new pre-flight checker.
func NewChecker(backend Backend) *Checker {
	return &Checker{
		backend: backend,
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets a custom timeout for RPC calls.
func (c *Checker) WithTimeout(timeout time.Duration) *Checker {
	c.timeout = timeout
	return c
}

// RunChecks performs all pre-flight checks and returns the results. Signer
// balances are fetched concurrently.
func (c *Checker) RunChecks(ctx context.Context, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response := &Response{
		OK:     true,
		Checks: make([]CheckResult, 0, 2+len(req.Signers)),
	}

	reachable := c.checkNodeReachable(rpcCtx)
	response.Checks = append(response.Checks, reachable)
	if !reachable.Passed {
		response.OK = false
		return response, nil // Can't continue without connection
	}

	chainID := c.checkChainIDMatch(rpcCtx, req.ChainID)
	response.Checks = append(response.Checks, chainID)
	if !chainID.Passed {
		response.OK = false
	}

	minBalance := req.MinBalance
	if minBalance == nil || minBalance.Sign() <= 0 {
		minBalance = big.NewInt(1)
	}

	balances := make([]CheckResult, len(req.Signers))
	g, gctx := errgroup.WithContext(rpcCtx)
	for i, addr := range req.Signers {
		i, addr := i, addr
		g.Go(func() error {
			balances[i] = c.checkSignerBalance(gctx, addr, minBalance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, b := range balances {
		response.Checks = append(response.Checks, b)
		if !b.Passed {
			response.OK = false
		}
	}

	return response, nil
}

// validateRequest validates the pre-flight request parameters.
func (c *Checker) validateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("request is required")
	}
	if req.ChainID == 0 {
		return fmt.Errorf("chain_id is required")
	}
	if len(req.Signers) == 0 {
		return fmt.Errorf("at least one signer is required")
	}
	return nil
}

func (c *Checker) checkNodeReachable(ctx context.Context) CheckResult {
	result := CheckResult{
		Name: CheckNodeReachable,
	}

	block, err := c.backend.BlockNumber(ctx)
	if err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("RPC connection failed: %v", err)
		result.Details = map[string]interface{}{
			"error": err.Error(),
		}
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Connected to RPC at block %d", block)
	result.Details = map[string]interface{}{
		"block_number": block,
	}
	return result
}

// checkChainIDMatch verifies the chain ID matches the expected value.
func (c *Checker) checkChainIDMatch(ctx context.Context, expectedChainID uint64) CheckResult {
	result := CheckResult{
		Name: CheckChainIDMatch,
	}

	actualChainID, err := c.backend.ChainID(ctx)
	if err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Failed to get chain ID: %v", err)
		result.Details = map[string]interface{}{
			"error": err.Error(),
		}
		return result
	}

	expected := new(big.Int).SetUint64(expectedChainID)
	if actualChainID.Cmp(expected) != 0 {
		result.Passed = false
		result.Message = fmt.Sprintf("Chain ID mismatch: expected %d, got %s", expectedChainID, actualChainID)
		result.Details = map[string]interface{}{
			"expected": expectedChainID,
			"actual":   actualChainID.String(),
		}
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Chain ID %d (%s) confirmed", expectedChainID, GetNetworkName(expectedChainID))
	result.Details = map[string]interface{}{
		"chain_id": expectedChainID,
	}
	return result
}

// checkSignerBalance verifies a signer holds at least minWei.
func (c *Checker) checkSignerBalance(ctx context.Context, addr common.Address, minWei *big.Int) CheckResult {
	result := CheckResult{
		Name: CheckSignerBalance,
	}

	balance, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Failed to get balance of %s: %v", addr.Hex(), err)
		result.Details = map[string]interface{}{
			"address": addr.Hex(),
			"error":   err.Error(),
		}
		return result
	}

	haveETH := units.FormatEther(balance)
	result.Details = map[string]interface{}{
		"address":  addr.Hex(),
		"have_wei": balance.String(),
		"need_wei": minWei.String(),
		"have_eth": haveETH,
	}

	if balance.Cmp(minWei) < 0 {
		result.Passed = false
		result.Message = fmt.Sprintf("Insufficient balance for %s: have %s ETH, need %s ETH",
			addr.Hex(), haveETH, units.FormatEther(minWei))
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("%s has %s ETH", addr.Hex(), haveETH)
	return result
}

// GetNetworkName returns a human-readable name for a chain ID.
func GetNetworkName(chainID uint64) string {
	switch chainID {
	case 1:
		return "Ethereum Mainnet"
	case 11155111:
		return "Sepolia"
	case 17000:
		return "Holesky"
	case 31337:
		return "Hardhat"
	case 42161:
		return "Arbitrum One"
	default:
		return fmt.Sprintf("Chain %d", chainID)
	}
}
