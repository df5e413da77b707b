// Package deploy is the generic deployment facility: blueprints registered
// per (kind, version) are instantiated at CREATE2-style addresses that can
// be predicted before deployment.
package deploy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
)

// FactoryAddress is the address every blueprint instance is derived from.
var FactoryAddress = common.HexToAddress("0x0000000000000000000000000000000000fac7")

var (
	ErrUnknownBlueprint = errors.New("unknown blueprint")
	ErrAddressOccupied  = errors.New("deployment address already in use")
)

// Blueprint initialises a fresh instance at addr from an encoded payload.
type Blueprint func(state core.State, addr common.Address, payload []byte) error

type blueprintKey struct {
	kind    string
	version uint64
}

var (
	mu         sync.RWMutex
	blueprints = map[blueprintKey]Blueprint{}
)

// RegisterBlueprint makes kind@version deployable. Panics on duplicates.
func RegisterBlueprint(kind string, version uint64, b Blueprint) {
	mu.Lock()
	defer mu.Unlock()
	k := blueprintKey{kind, version}
	if _, exists := blueprints[k]; exists {
		panic(fmt.Sprintf("deploy: blueprint %s@%d already registered", kind, version))
	}
	blueprints[k] = b
}

func lookup(kind string, version uint64) (Blueprint, error) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := blueprints[blueprintKey{kind, version}]
	if !ok {
		return nil, fmt.Errorf("%w %s@%d", ErrUnknownBlueprint, kind, version)
	}
	return b, nil
}

// Salt binds an instance address to its deployer and init payload.
func Salt(deployer common.Address, payload []byte) common.Hash {
	return crypto.HashBytes(deployer.Bytes(), crypto.HashBytes(payload).Bytes())
}

// PredictAddress returns the address Deploy will use for the same inputs.
func PredictAddress(deployer common.Address, kind string, payload []byte, version uint64) (common.Address, error) {
	if _, err := lookup(kind, version); err != nil {
		return common.Address{}, err
	}
	return crypto.BlueprintAddress(FactoryAddress, kind, version, Salt(deployer, payload)), nil
}

// Factory is the deployment facility bound to an execution context.
type Factory struct {
	ctx *vm.Context
}

// At binds the facility to ctx.
func At(ctx *vm.Context) *Factory {
	return &Factory{ctx: ctx}
}

// PredictAddress is the bound form of the package-level PredictAddress.
func (f *Factory) PredictAddress(deployer common.Address, kind string, payload []byte, version uint64) (common.Address, error) {
	return PredictAddress(deployer, kind, payload, version)
}

// Deploy instantiates kind@version for deployer. Deploying twice with the
// same deployer and payload collides on the address and fails.
func (f *Factory) Deploy(deployer common.Address, kind string, payload []byte, version uint64) (common.Address, error) {
	b, err := lookup(kind, version)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.BlueprintAddress(FactoryAddress, kind, version, Salt(deployer, payload))
	acc, err := f.ctx.State.GetAccount(addr)
	if err != nil {
		return common.Address{}, err
	}
	if acc.Kind != core.KindExternal {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAddressOccupied, addr.Hex())
	}
	if err := b(f.ctx.State, addr, payload); err != nil {
		return common.Address{}, fmt.Errorf("init %s@%d: %w", kind, version, err)
	}
	f.ctx.Emit(events.EventContractDeployed, map[string]any{
		"deployer": deployer.Hex(),
		"kind":     kind,
		"version":  version,
		"address":  addr.Hex(),
	})
	return addr, nil
}
