package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultRemoteTimeout is the default HTTP timeout for remote signing.
const DefaultRemoteTimeout = 30 * time.Second

var ErrNoRemoteAccounts = errors.New("popdeploy: remote signer has no accounts")

// APIError represents an error returned by the remote signer.
type APIError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// IsUnauthorized returns true if the API key was rejected.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Remote signs transactions through a POPSigner JSON-RPC endpoint
// (eth_accounts, eth_signTransaction). Keys never leave the signer.
type Remote struct {
	endpoint   string
	apiKey     string
	chainID    *big.Int
	address    common.Address
	httpClient *http.Client
	nextID     atomic.Int64
}

// RemoteOption configures a Remote signer.
type RemoteOption func(*Remote)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) RemoteOption {
	return func(r *Remote) {
		r.httpClient.Timeout = timeout
	}
}

// NewRemote creates a remote signer. If address is the zero address, the
// first account reported by eth_accounts is used.
func NewRemote(ctx context.Context, endpoint, apiKey string, chainID *big.Int, address common.Address, opts ...RemoteOption) (*Remote, error) {
	r := &Remote{
		endpoint: endpoint,
		apiKey:   apiKey,
		chainID:  chainID,
		address:  address,
		httpClient: &http.Client{
			Timeout: DefaultRemoteTimeout,
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.address == (common.Address{}) {
		accounts, err := r.Accounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover remote account: %w", err)
		}
		if len(accounts) == 0 {
			return nil, ErrNoRemoteAccounts
		}
		r.address = accounts[0]
	}

	return r, nil
}

// Address returns the signing account.
func (r *Remote) Address() common.Address {
	return r.address
}

// Accounts lists the addresses the endpoint can sign for.
func (r *Remote) Accounts(ctx context.Context) ([]common.Address, error) {
	var raw []string
	if err := r.call(ctx, "eth_accounts", []interface{}{}, &raw); err != nil {
		return nil, err
	}
	accounts := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("remote returned invalid address %q", a)
		}
		accounts = append(accounts, common.HexToAddress(a))
	}
	return accounts, nil
}

// SignTransaction signs tx via eth_signTransaction and checks the recovered
// sender matches the configured address.
func (r *Remote) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	var signedTxHex string
	if err := r.call(ctx, "eth_signTransaction", []interface{}{r.buildTransactionArgs(tx)}, &signedTxHex); err != nil {
		return nil, err
	}

	txBytes, err := hexutil.Decode(signedTxHex)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}

	var signedTx types.Transaction
	if err := signedTx.UnmarshalBinary(txBytes); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}

	if err := verifySender(&signedTx, r.chainID, r.address); err != nil {
		return nil, err
	}
	return &signedTx, nil
}

func (r *Remote) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      r.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{
			Message:    string(bytes.TrimSpace(body)),
			StatusCode: resp.StatusCode,
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}

// buildTransactionArgs converts a go-ethereum transaction to JSON-RPC args.
func (r *Remote) buildTransactionArgs(tx *types.Transaction) txArgs {
	args := txArgs{
		From:    r.address.Hex(),
		Gas:     hexutil.EncodeUint64(tx.Gas()),
		Value:   hexutil.EncodeBig(tx.Value()),
		Nonce:   hexutil.EncodeUint64(tx.Nonce()),
		ChainID: hexutil.EncodeBig(r.chainID),
	}

	// nil for contract creation
	if tx.To() != nil {
		to := tx.To().Hex()
		args.To = &to
	}

	if len(tx.Data()) > 0 {
		args.Data = hexutil.Encode(tx.Data())
	}

	switch tx.Type() {
	case types.DynamicFeeTxType:
		maxFee := hexutil.EncodeBig(tx.GasFeeCap())
		maxTip := hexutil.EncodeBig(tx.GasTipCap())
		args.MaxFeePerGas = &maxFee
		args.MaxPriorityFeePerGas = &maxTip
	default:
		gasPrice := hexutil.EncodeBig(tx.GasPrice())
		args.GasPrice = &gasPrice
	}

	return args
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// txArgs represents Ethereum transaction arguments for JSON-RPC.
type txArgs struct {
	From                 string  `json:"from"`
	To                   *string `json:"to,omitempty"`
	Gas                  string  `json:"gas"`
	GasPrice             *string `json:"gasPrice,omitempty"`
	MaxFeePerGas         *string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas,omitempty"`
	Value                string  `json:"value"`
	Nonce                string  `json:"nonce"`
	Data                 string  `json:"data,omitempty"`
	ChainID              string  `json:"chainId"`
}
