// popdeploy deploys the project's EVM contracts from named accounts.
//
// It runs registered deployment steps against a configured network, signing
// with local keys, keystores or a POPSigner endpoint, and records every
// deployment so repeated runs reuse contracts already on chain.
package main

import "github.com/Bidon15/popdeploy/internal/cli"

func main() {
	cli.Execute()
}
