package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/Bidon15/popdeploy/internal/artifacts"
	"github.com/Bidon15/popdeploy/internal/deployments"
	"github.com/Bidon15/popdeploy/internal/metrics"
	"github.com/Bidon15/popdeploy/internal/preflight"
	"github.com/Bidon15/popdeploy/internal/steps"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run deployment steps against a network",
	Long: `Run the registered deployment steps against the selected network.

Without --tags every non-optional step runs. Optional steps (APD, ARB) run
only when their tag is requested. Contracts whose bytecode and constructor
arguments match a recorded deployment still on chain are reused.

Examples:
  popdeploy deploy --network sepolia
  popdeploy deploy --network sepolia --tags APD,ARB
  popdeploy deploy --dry-run`,
	RunE: runDeploy,
}

// registry builds the step registry used by deploy and steps.
var registry = steps.Default

func init() {
	deployCmd.Flags().StringSlice("tags", nil, "only run steps carrying these tags (comma separated)")
	deployCmd.Flags().Bool("dry-run", false, "list the selected steps without deploying")
	deployCmd.Flags().Bool("skip-preflight", false, "skip node, chain ID and balance checks")
	deployCmd.Flags().String("metrics-file", "", "write Prometheus metrics for this run to a textfile")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	tags, _ := cmd.Flags().GetStringSlice("tags")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	skipPreflight, _ := cmd.Flags().GetBool("skip-preflight")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	reg := registry()
	selected, err := reg.Select(tags)
	if err != nil {
		return err
	}

	if dryRun {
		return printSelection(cmd, selected)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, cmd, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sess.net.Timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, sess.net.RPCURL)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", sess.network, err)
	}
	defer client.Close()

	if !skipPreflight {
		if err := runPreflight(ctx, cmd, sess, client); err != nil {
			return err
		}
	}

	manager := deployments.NewManager(
		deployments.Config{
			Network:              sess.network,
			ChainID:              sess.chainID,
			GasPriceBoostPercent: sess.net.GasPriceBoostPercent,
		},
		client,
		artifacts.NewLoader(sess.cfg.ArtifactsDir),
		sess.accounts,
		deployments.NewFileStore(sess.cfg.DeploymentsDir),
		sess.logger,
		cmd.OutOrStdout(),
	)

	runMetrics := metrics.New()
	env := steps.Env{
		Accounts:    sess.accounts,
		Deployments: metrics.Instrument(manager, runMetrics, sess.network),
		Network:     sess.network,
		Logger:      sess.logger,
	}

	sess.logger.Info("deploying",
		slog.String("run_id", manager.RunID().String()),
		slog.String("steps", strings.Join(stepNames(selected), ",")),
	)

	runErr := steps.NewRunner(reg, sess.logger).Run(ctx, env, tags)
	if metricsFile != "" {
		if err := runMetrics.WriteTextfile(metricsFile); err != nil {
			sess.logger.Warn("failed to write metrics", slog.String("path", metricsFile), slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		return runErr
	}

	if jsonOut {
		records, err := deployments.NewFileStore(sess.cfg.DeploymentsDir).List(ctx, sess.network)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Deployment to %s complete (run %s)\n",
		colorGreen("✓"), sess.network, manager.RunID())
	return nil
}

func runPreflight(ctx context.Context, cmd *cobra.Command, sess *session, client *ethclient.Client) error {
	req, err := preflightRequest(sess)
	if err != nil {
		return err
	}
	if len(req.Signers) == 0 {
		sess.logger.Warn("no signers configured, skipping preflight")
		return nil
	}

	resp, err := preflight.NewChecker(client).RunChecks(ctx, req)
	if err != nil {
		return err
	}

	for _, check := range resp.Checks {
		mark := colorGreen("✓")
		if !check.Passed {
			mark = colorRed("✗")
		}
		sess.logger.Debug("preflight check",
			slog.String("check", string(check.Name)),
			slog.Bool("passed", check.Passed),
		)
		if !jsonOut {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", mark, check.Message)
		}
	}
	return resp.Err()
}

func preflightRequest(sess *session) (*preflight.Request, error) {
	minBalance, err := sess.net.MinBalanceWei()
	if err != nil {
		return nil, err
	}
	addrs := make([]common.Address, 0, len(sess.signers))
	for _, s := range sess.signers {
		addrs = append(addrs, s.Address())
	}
	return &preflight.Request{
		ChainID:    sess.net.ChainID,
		Signers:    addrs,
		MinBalance: minBalance,
	}, nil
}

func printSelection(cmd *cobra.Command, selected []steps.Step) error {
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), stepViews(selected))
	}
	if len(selected) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No steps selected")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Would run %d step(s):\n", colorYellow("⚠"), len(selected))
	for i, s := range selected {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, s.Name)
	}
	return nil
}

func stepNames(selected []steps.Step) []string {
	names := make([]string, len(selected))
	for i, s := range selected {
		names[i] = s.Name
	}
	return names
}
