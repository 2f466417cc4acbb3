package steps

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/popdeploy/internal/deployments"
	"github.com/Bidon15/popdeploy/internal/units"
)

// Constructor parameters of the IDOSale deployment.
const (
	IDOSaleToken          = "0x28cb21bd49351699C0414CF18BEE720BC64CcB7c"
	IDOSaleTreasury       = "0xCfEF4B3F7B2a606a0Ed5c2C2C933973B224baa4a"
	IDOSaleRate           = 6666700
	IDOSaleBasisPoints    = 5155
	IDOSalePurchaseCapEth = "333340"
)

// DeployerRole is the named account that sends every deployment.
const DeployerRole = "deployer"

// IDOSaleArgs builds the ordered constructor arguments of IDOSale.
func IDOSaleArgs() ([]interface{}, error) {
	purchaseCap, err := units.ParseEther(IDOSalePurchaseCapEth)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		IDOSaleToken,
		IDOSaleTreasury,
		IDOSaleRate,
		IDOSaleBasisPoints,
		purchaseCap,
	}, nil
}

// DeployIDOSale publishes one IDOSale instance from the deployer account.
// Errors from the deploy capability are returned unchanged.
func DeployIDOSale(ctx context.Context, env Env) error {
	deployer, err := deployerAddress(ctx, env)
	if err != nil {
		return err
	}
	args, err := IDOSaleArgs()
	if err != nil {
		return err
	}
	_, err = env.Deployments.Deploy(ctx, "IDOSale", deployments.DeployOptions{
		From: deployer,
		Args: args,
		Log:  true,
	})
	return err
}

// DeployAPD publishes the APD contract. It takes no constructor arguments.
func DeployAPD(ctx context.Context, env Env) error {
	return deployNoArgs(ctx, env, "APD")
}

// DeployARB publishes the ARB contract. It takes no constructor arguments.
func DeployARB(ctx context.Context, env Env) error {
	return deployNoArgs(ctx, env, "ARB")
}

func deployNoArgs(ctx context.Context, env Env, name string) error {
	deployer, err := deployerAddress(ctx, env)
	if err != nil {
		return err
	}
	_, err = env.Deployments.Deploy(ctx, name, deployments.DeployOptions{
		From: deployer,
		Log:  true,
	})
	return err
}

func deployerAddress(ctx context.Context, env Env) (common.Address, error) {
	named, err := env.Accounts.NamedAccounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	deployer, ok := named[DeployerRole]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingAccount, DeployerRole)
	}
	return deployer, nil
}

// Default returns the registry of the project's deployment steps. IDOSale
// runs by default; APD and ARB run only when their tag is requested.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(Step{
		Name: "IDOSale",
		Tags: []string{"IDOSale"},
		Run:  DeployIDOSale,
	})
	r.MustRegister(Step{
		Name:     "APD",
		Tags:     []string{"APD"},
		Optional: true,
		Run:      DeployAPD,
	})
	r.MustRegister(Step{
		Name:     "ARB",
		Tags:     []string{"ARB"},
		Optional: true,
		Run:      DeployARB,
	})
	return r
}
