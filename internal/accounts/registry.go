// Package accounts resolves named accounts (role -> address) and the signers
// that control them.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/popdeploy/internal/deployments"
	"github.com/Bidon15/popdeploy/internal/signer"
)

// DefaultKey is the named-account entry used when no network-specific
// entry exists.
const DefaultKey = "default"

var (
	ErrUnknownAccount = errors.New("popdeploy: cannot resolve named account")
	ErrUnknownSigner  = errors.New("popdeploy: address has no configured signer")
)

// Registry resolves named accounts for one network.
type Registry struct {
	network string
	named   map[string]map[string]interface{}
	signers []signer.Signer
	byAddr  map[common.Address]signer.Signer
}

// NewRegistry creates a registry. named maps role -> (network|"default") ->
// entry, where an entry is an index into signers or a literal address.
func NewRegistry(network string, named map[string]map[string]interface{}, signers []signer.Signer) *Registry {
	byAddr := make(map[common.Address]signer.Signer, len(signers))
	for _, s := range signers {
		byAddr[s.Address()] = s
	}
	return &Registry{
		network: network,
		named:   named,
		signers: signers,
		byAddr:  byAddr,
	}
}

// NamedAccounts resolves every configured role for the registry's network.
// Roles with neither a network entry nor a default are omitted.
func (r *Registry) NamedAccounts(_ context.Context) (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(r.named))
	for role, entries := range r.named {
		entry, ok := entries[r.network]
		if !ok {
			entry, ok = entries[DefaultKey]
		}
		if !ok {
			continue
		}
		addr, err := r.resolve(entry)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrUnknownAccount, role, err)
		}
		out[role] = addr
	}
	return out, nil
}

// Roles returns the configured role names, sorted.
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(r.named))
	for role := range r.named {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

func (r *Registry) resolve(entry interface{}) (common.Address, error) {
	switch v := entry.(type) {
	case int:
		return r.byIndex(v)
	case int64:
		return r.byIndex(int(v))
	case uint64:
		return r.byIndex(int(v))
	case float64:
		if v != float64(int(v)) {
			return common.Address{}, fmt.Errorf("signer index %v is not an integer", v)
		}
		return r.byIndex(int(v))
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return r.byIndex(i)
		}
		return deployments.ParseAddress(v)
	}
	return common.Address{}, fmt.Errorf("unsupported entry %v (%T)", entry, entry)
}

func (r *Registry) byIndex(i int) (common.Address, error) {
	if i < 0 || i >= len(r.signers) {
		return common.Address{}, fmt.Errorf("signer index %d out of range (%d signers)", i, len(r.signers))
	}
	return r.signers[i].Address(), nil
}

// Signer returns the signer controlling addr.
func (r *Registry) Signer(addr common.Address) (signer.Signer, error) {
	s, ok := r.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, addr.Hex())
	}
	return s, nil
}

// Signers returns the configured signers in order.
func (r *Registry) Signers() []signer.Signer {
	return r.signers
}
