package arcade

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/vm/modules/credential"
	"github.com/tolelom/artcade/vm/modules/deploy"
	"github.com/tolelom/artcade/vm/modules/economy"
	"github.com/tolelom/artcade/vm/modules/token"
)

// CredentialStore issues one credential per registered player.
type CredentialStore interface {
	Mint(caller, to common.Address, uri string) (uint64, error)
	OwnerOf(id uint64) (common.Address, error)
	TotalSupply() (uint64, error)
	HasAdminRole(account common.Address) (bool, error)
}

// RewardStore mints ticket units on instruction from the registry.
type RewardStore interface {
	Mint(caller common.Address, id *big.Int, recipients []common.Address, amounts []*big.Int) error
	BalanceOf(account common.Address, id *big.Int) (*big.Int, error)
}

// Deployer deploys credential collections at predictable addresses.
type Deployer interface {
	PredictAddress(deployer common.Address, kind string, payload []byte, version uint64) (common.Address, error)
	Deploy(deployer common.Address, kind string, payload []byte, version uint64) (common.Address, error)
}

// ValueTransfer pays native value, falling back to wrapped units when the
// recipient refuses it.
type ValueTransfer interface {
	Transfer(from, to common.Address, amount *big.Int, wrapper common.Address) error
}

// Env wires the collaborators the registry and games call into.
type Env struct {
	Credentials func(addr common.Address) CredentialStore
	Rewards     func(addr common.Address) RewardStore
	Deployer    Deployer
	Payments    ValueTransfer
}

// NewEnv returns the collaborators backed by the chain's own modules.
func NewEnv(ctx *vm.Context) Env {
	return Env{
		Credentials: func(addr common.Address) CredentialStore { return credential.At(ctx, addr) },
		Rewards:     func(addr common.Address) RewardStore { return token.At(ctx, addr) },
		Deployer:    deploy.At(ctx),
		Payments:    payer{ctx: ctx},
	}
}

type payer struct {
	ctx *vm.Context
}

func (p payer) Transfer(from, to common.Address, amount *big.Int, wrapper common.Address) error {
	return economy.Pay(p.ctx, from, to, amount, wrapper)
}
