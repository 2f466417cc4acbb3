package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/popdeploy/internal/config"
	"github.com/Bidon15/popdeploy/internal/signer"
)

// LoadSigners builds signers from configuration, reading secrets from the
// environment variables the configuration names.
func LoadSigners(ctx context.Context, cfgs []config.SignerConfig, chainID *big.Int, logger *slog.Logger) ([]signer.Signer, error) {
	signers := make([]signer.Signer, 0, len(cfgs))
	for i, sc := range cfgs {
		s, err := loadSigner(ctx, sc, chainID)
		if err != nil {
			return nil, fmt.Errorf("signer %d (%s): %w", i, sc.Type, err)
		}
		logger.Debug("signer loaded",
			slog.Int("index", i),
			slog.String("type", sc.Type),
			slog.String("address", s.Address().Hex()),
		)
		signers = append(signers, s)
	}
	return signers, nil
}

func loadSigner(ctx context.Context, sc config.SignerConfig, chainID *big.Int) (signer.Signer, error) {
	switch sc.Type {
	case config.SignerTypeKey:
		key, err := config.Secret(sc.PrivateKeyEnv)
		if err != nil {
			return nil, err
		}
		return signer.NewLocal(key, chainID)

	case config.SignerTypeKeystore:
		password, err := config.Secret(sc.PasswordEnv)
		if err != nil {
			return nil, err
		}
		return signer.NewKeystore(sc.KeystorePath, password, chainID)

	case config.SignerTypePOPSigner:
		apiKey, err := config.Secret(sc.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		var addr common.Address
		if sc.Address != "" {
			addr = common.HexToAddress(sc.Address)
		}
		return signer.NewRemote(ctx, sc.Endpoint, apiKey, chainID, addr)
	}
	return nil, fmt.Errorf("unsupported signer type %q", sc.Type)
}
