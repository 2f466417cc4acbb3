package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Show named accounts and signers for a network",
	Long: `Resolve every named account for the selected network and list the
signers that can send transactions.

Examples:
  popdeploy accounts
  popdeploy accounts --network sepolia --json`,
	RunE: runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

type accountView struct {
	Role    string `json:"role"`
	Address string `json:"address"`
	Signer  bool   `json:"signer"`
}

type signerView struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

func runAccounts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := newSession(ctx, cmd, true)
	if err != nil {
		return err
	}

	named, err := sess.accounts.NamedAccounts(ctx)
	if err != nil {
		return err
	}

	roles := sess.accounts.Roles()
	accts := make([]accountView, 0, len(named))
	for _, role := range roles {
		if _, ok := named[role]; !ok {
			continue
		}
		_, err := sess.accounts.Signer(named[role])
		accts = append(accts, accountView{
			Role:    role,
			Address: named[role].Hex(),
			Signer:  err == nil,
		})
	}

	signers := make([]signerView, len(sess.signers))
	for i, s := range sess.signers {
		signers[i] = signerView{
			Index:   i,
			Type:    sess.net.Signers[i].Type,
			Address: s.Address().Hex(),
		}
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"network":  sess.network,
			"chain_id": sess.net.ChainID,
			"accounts": accts,
			"signers":  signers,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Network: %s (chain %d)\n\n", sess.network, sess.net.ChainID)

	if len(accts) == 0 {
		fmt.Fprintf(out, "%s\n", colorYellow("No named accounts configured"))
	} else {
		w := newTable(out)
		printTableHeader(w, "ROLE", "ADDRESS", "CAN SIGN")
		for _, a := range accts {
			canSign := colorGreen("yes")
			if !a.Signer {
				canSign = colorYellow("no")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Role, a.Address, canSign)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	w := newTable(out)
	printTableHeader(w, "INDEX", "TYPE", "SIGNER")
	for _, s := range signers {
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Index, s.Type, s.Address)
	}
	return w.Flush()
}
