package signer

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// NewKeystore decrypts a go-ethereum keystore (V3 JSON) file and returns a
// local signer for the contained key.
func NewKeystore(path, password string, chainID *big.Int) (*Local, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}
	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
	}
	return NewLocalFromKey(key.PrivateKey, chainID), nil
}
