package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/Bidon15/popdeploy/internal/accounts"
	"github.com/Bidon15/popdeploy/internal/config"
	"github.com/Bidon15/popdeploy/internal/signer"
)

// session bundles the configuration resolved for one command invocation.
type session struct {
	cfg      *config.Config
	network  string
	net      config.Network
	chainID  *big.Int
	logger   *slog.Logger
	signers  []signer.Signer
	accounts *accounts.Registry
}

// newSession loads configuration and the selected network. Signers are only
// loaded when withSigners is set since remote signers need a round trip.
func newSession(ctx context.Context, cmd *cobra.Command, withSigners bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	name := getNetwork()
	net, err := cfg.Network(name)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		network: name,
		net:     net,
		chainID: new(big.Int).SetUint64(net.ChainID),
		logger:  newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat).With(slog.String("network", name)),
	}

	if withSigners {
		s.signers, err = accounts.LoadSigners(ctx, net.Signers, s.chainID, s.logger)
		if err != nil {
			return nil, fmt.Errorf("load signers: %w", err)
		}
	}
	s.accounts = accounts.NewRegistry(name, cfg.NamedAccounts, s.signers)
	return s, nil
}
