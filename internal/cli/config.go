package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Bidon15/popdeploy/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage popdeploy configuration",
	Long:  `Commands for managing the popdeploy configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Create popdeploy.yaml in the current directory with a localhost network
using the first Hardhat development account as deployer.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

const starterConfig = `# popdeploy configuration
artifacts_dir: artifacts
deployments_dir: deployments
log_level: info
log_format: text

networks:
  localhost:
    rpc_url: http://127.0.0.1:8545
    chain_id: 31337
    timeout: 5m
    signers:
      - type: key
        private_key_env: DEPLOYER_PRIVATE_KEY
  # sepolia:
  #   rpc_url: https://rpc.sepolia.org
  #   chain_id: 11155111
  #   min_balance: "0.05"
  #   signers:
  #     - type: popsigner
  #       endpoint: https://rpc.popsigner.com
  #       api_key_env: POPSIGNER_API_KEY

named_accounts:
  deployer:
    default: 0
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	path := localConfigFile
	if cfgFile != "" {
		path = cfgFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Config file already exists at %s (use --force to overwrite)\n", colorYellow("⚠"), path)
		return nil
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Config file created at %s\n", colorGreen("✓"), path)
	return nil
}

// configView is the printable form of config.Config. Secrets are never held
// in the configuration, only the names of the variables that carry them.
type configView struct {
	ConfigFile     string                            `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	Network        string                            `json:"network" yaml:"network"`
	ArtifactsDir   string                            `json:"artifacts_dir" yaml:"artifacts_dir"`
	DeploymentsDir string                            `json:"deployments_dir" yaml:"deployments_dir"`
	LogLevel       string                            `json:"log_level" yaml:"log_level"`
	LogFormat      string                            `json:"log_format" yaml:"log_format"`
	Networks       map[string]networkView            `json:"networks" yaml:"networks"`
	NamedAccounts  map[string]map[string]interface{} `json:"named_accounts,omitempty" yaml:"named_accounts,omitempty"`
}

type networkView struct {
	RPCURL               string                `json:"rpc_url" yaml:"rpc_url"`
	ChainID              uint64                `json:"chain_id" yaml:"chain_id"`
	Timeout              string                `json:"timeout" yaml:"timeout"`
	GasPriceBoostPercent int                   `json:"gas_price_boost_percent,omitempty" yaml:"gas_price_boost_percent,omitempty"`
	MinBalance           string                `json:"min_balance,omitempty" yaml:"min_balance,omitempty"`
	Signers              []config.SignerConfig `json:"signers" yaml:"signers"`
}

func newConfigView(cfg *config.Config) configView {
	view := configView{
		ConfigFile:     viper.ConfigFileUsed(),
		Network:        getNetwork(),
		ArtifactsDir:   cfg.ArtifactsDir,
		DeploymentsDir: cfg.DeploymentsDir,
		LogLevel:       cfg.LogLevel,
		LogFormat:      cfg.LogFormat,
		Networks:       make(map[string]networkView, len(cfg.Networks)),
		NamedAccounts:  cfg.NamedAccounts,
	}
	for _, name := range cfg.NetworkNames() {
		n, _ := cfg.Network(name)
		view.Networks[name] = networkView{
			RPCURL:               n.RPCURL,
			ChainID:              n.ChainID,
			Timeout:              n.Timeout.String(),
			GasPriceBoostPercent: n.GasPriceBoostPercent,
			MinBalance:           n.MinBalance,
			Signers:              n.Signers,
		}
	}
	return view
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	view := newConfigView(cfg)

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), view)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
