// Package cli implements the popdeploy command tree.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bidon15/popdeploy/internal/config"
	"github.com/Bidon15/popdeploy/internal/signer"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Global flags
	cfgFile     string
	networkName string
	jsonOut     bool
)

// localConfigFile is the project-local config file name.
const localConfigFile = "popdeploy.yaml"

// DefaultNetwork is used when neither --network nor POPDEPLOY_NETWORK is set.
const DefaultNetwork = "localhost"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "popdeploy",
	Short: "Deploy EVM contracts from named accounts",
	Long: `popdeploy runs the project's contract deployment steps against a
configured EVM network and records every deployment so repeated runs reuse
contracts that are already on chain.

Configuration (in order of priority):
  1. Command-line flags (--network, --log-level, ...)
  2. Environment variables (POPDEPLOY_NETWORK, POPDEPLOY_ARTIFACTS_DIR, ...)
  3. Config file (./popdeploy.yaml or ~/.popdeploy.yaml)

Get started:
  $ popdeploy config init             # Write a starter popdeploy.yaml
  $ popdeploy accounts                # Show the named accounts
  $ popdeploy deploy --network sepolia`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "popdeploy version %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./popdeploy.yaml or ~/.popdeploy.yaml)")
	rootCmd.PersistentFlags().StringVarP(&networkName, "network", "n", "", "target network (or POPDEPLOY_NETWORK)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format: text, json")
	rootCmd.PersistentFlags().String("artifacts-dir", config.DefaultArtifactsDir, "directory holding compiled contract artifacts")
	rootCmd.PersistentFlags().String("deployments-dir", config.DefaultDeploymentsDir, "directory holding deployment records")

	// Add commands
	rootCmd.AddCommand(versionCmd)
}

// initConfig initializes viper configuration.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	// Flags
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("artifacts_dir", flags.Lookup("artifacts-dir"))
	_ = viper.BindPFlag("deployments_dir", flags.Lookup("deployments-dir"))

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile(defaultConfigFile())
	}

	// Environment variables
	viper.SetEnvPrefix("POPDEPLOY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("network", "POPDEPLOY_NETWORK")

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// defaultConfigFile returns ./popdeploy.yaml when present, otherwise
// ~/.popdeploy.yaml.
func defaultConfigFile() string {
	if _, err := os.Stat(localConfigFile); err == nil {
		return localConfigFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return localConfigFile
	}
	return filepath.Join(home, ".popdeploy.yaml")
}

// loadConfig decodes and validates the active configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// getNetwork returns the network name from flags, env, or the default.
func getNetwork() string {
	if networkName != "" {
		return strings.ToLower(networkName)
	}
	if n := viper.GetString("network"); n != "" {
		return strings.ToLower(n)
	}
	return DefaultNetwork
}

// newLogger builds the structured logger configured by --log-level and
// --log-format. Logs go to w so stdout stays free for command output.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Output helpers

// printJSON outputs data as formatted JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints an error message.
func printError(w io.Writer, err error) {
	var apiErr *signer.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(w, "%s %s\n", colorRed("Error:"), apiErr.Message)
		if apiErr.Code != 0 {
			fmt.Fprintf(w, "  Code: %d\n", apiErr.Code)
		}
		return
	}
	fmt.Fprintf(w, "%s %s\n", colorRed("Error:"), err.Error())
}

// newTable creates a new tabwriter for formatted output.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printTableHeader prints a bold header row.
func printTableHeader(w *tabwriter.Writer, columns ...string) {
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, colorBold(col))
	}
	fmt.Fprintln(w)
}

// Terminal colors. fatih/color disables itself when stdout is not a TTY.
var (
	colorRed    = color.New(color.FgRed).SprintFunc()
	colorGreen  = color.New(color.FgGreen).SprintFunc()
	colorYellow = color.New(color.FgYellow).SprintFunc()
	colorBold   = color.New(color.Bold).SprintFunc()
)

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
