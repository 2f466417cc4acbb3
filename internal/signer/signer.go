// Package signer provides transaction signers for contract deployments.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidPrivateKey = errors.New("popdeploy: invalid private key")
	ErrAddressMismatch   = errors.New("popdeploy: signed transaction sender mismatch")
)

// Signer signs transactions on behalf of a single account.
type Signer interface {
	Address() common.Address
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// Local signs with an in-memory secp256k1 private key.
type Local struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewLocal creates a signer from a hex-encoded private key (0x prefix optional).
func NewLocal(hexKey string, chainID *big.Int) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return NewLocalFromKey(key, chainID), nil
}

// NewLocalFromKey creates a signer from a parsed private key.
func NewLocalFromKey(key *ecdsa.PrivateKey, chainID *big.Int) *Local {
	return &Local{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}
}

// Address returns the signer's account address.
func (l *Local) Address() common.Address {
	return l.address
}

// SignTransaction signs tx for the configured chain.
func (l *Local) SignTransaction(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, l.signer, l.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// verifySender checks that a signature recovered from tx belongs to want.
func verifySender(tx *types.Transaction, chainID *big.Int, want common.Address) error {
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return fmt.Errorf("recover sender: %w", err)
	}
	if from != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrAddressMismatch, want.Hex(), from.Hex())
	}
	return nil
}
