package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Bidon15/popdeploy/internal/deployments"
)

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "Inspect recorded deployments",
	Long: `Commands for reading the deployment records written by deploy.

Examples:
  popdeploy deployments list --network sepolia
  popdeploy deployments export --network sepolia --format yaml
  popdeploy deployments export --output addresses.json`,
}

var deploymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployments on a network",
	RunE:  runDeploymentsList,
}

var deploymentsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export deployments keyed by name",
	RunE:  runDeploymentsExport,
}

func init() {
	deploymentsExportCmd.Flags().String("format", "json", "output format: json or yaml")
	deploymentsExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")

	deploymentsCmd.AddCommand(deploymentsListCmd)
	deploymentsCmd.AddCommand(deploymentsExportCmd)
	rootCmd.AddCommand(deploymentsCmd)
}

func runDeploymentsList(cmd *cobra.Command, args []string) error {
	sess, err := newSession(cmd.Context(), cmd, false)
	if err != nil {
		return err
	}

	records, err := deployments.NewFileStore(sess.cfg.DeploymentsDir).List(cmd.Context(), sess.network)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), records)
	}

	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No deployments on %s\n", sess.network)
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	printTableHeader(w, "NAME", "ADDRESS", "BLOCK", "TX", "DEPLOYED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.Name,
			r.Address.Hex(),
			r.BlockNumber,
			truncate(r.TransactionHash.Hex(), 18),
			r.DeployedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runDeploymentsExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}

	sess, err := newSession(cmd.Context(), cmd, false)
	if err != nil {
		return err
	}

	records, err := deployments.NewFileStore(sess.cfg.DeploymentsDir).List(cmd.Context(), sess.network)
	if err != nil {
		return err
	}

	byName := make(map[string]*deployments.Record, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(byName)
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	} else {
		err = printJSON(w, byName)
	}
	if err != nil {
		return fmt.Errorf("export deployments: %w", err)
	}

	if output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %d deployment(s) to %s\n", colorGreen("✓"), len(records), output)
	}
	return nil
}
