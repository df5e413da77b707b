package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/vm/modules/arcade"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// RegistrySettings converts the genesis registry section.
func (g GenesisConfig) RegistrySettings() (core.RegistrySettings, error) {
	price := new(big.Int)
	if g.Registry.PricePerGame != "" {
		var err error
		if price, err = core.ParseEther(g.Registry.PricePerGame); err != nil {
			return core.RegistrySettings{}, fmt.Errorf("price_per_game: %w", err)
		}
	}
	s := core.RegistrySettings{
		PricePerGame:      price,
		MaxTicketsPerGame: g.Registry.MaxTicketsPerGame,
		ProtocolFeeBps:    g.Registry.ProtocolFeeBps,
	}
	if g.Registry.ProtocolRecipient != "" {
		s.ProtocolRecipient = common.HexToAddress(g.Registry.ProtocolRecipient)
	}
	return s, nil
}

// CreateGenesisBlock credits the Alloc balances, deploys the arcade
// registry, commits the state and returns block #0 sealed by the
// authority key.
func CreateGenesisBlock(cfg *Config, state core.State, authority crypto.PrivateKey) (*core.Block, arcade.Deployment, error) {
	dep, err := applyGenesis(cfg, state, authority.Address())
	if err != nil {
		return nil, arcade.Deployment{}, err
	}
	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, arcade.Deployment{}, err
	}

	block := core.NewBlock(0, GenesisHash, authority.Address(), nil)
	block.Header.StateRoot = stateRoot
	block.Header.TxRoot = genesisTxRoot(cfg.Genesis.ChainID)
	if err := block.Seal(authority); err != nil {
		return nil, arcade.Deployment{}, err
	}
	return block, dep, nil
}

// ImportGenesis rebuilds the genesis state from cfg and checks it against a
// genesis block sealed elsewhere. The state is committed only when the
// roots agree.
func ImportGenesis(cfg *Config, state core.State, block *core.Block) (arcade.Deployment, error) {
	h := block.Header
	if h.Height != 0 || !IsGenesisHash(h.PrevHash) {
		return arcade.Deployment{}, fmt.Errorf("block %d is not a genesis block", h.Height)
	}
	if cfg.Authority != "" && h.Proposer != common.HexToAddress(cfg.Authority) {
		return arcade.Deployment{}, fmt.Errorf("genesis sealed by %s, not the authority %s", h.Proposer.Hex(), cfg.Authority)
	}
	if err := block.Verify(); err != nil {
		return arcade.Deployment{}, fmt.Errorf("genesis signature: %w", err)
	}
	if h.TxRoot != genesisTxRoot(cfg.Genesis.ChainID) {
		return arcade.Deployment{}, fmt.Errorf("genesis belongs to another chain id than %d", cfg.Genesis.ChainID)
	}

	snap, err := state.Snapshot()
	if err != nil {
		return arcade.Deployment{}, err
	}
	dep, err := applyGenesis(cfg, state, h.Proposer)
	if err == nil {
		if root := state.ComputeRoot(); root != h.StateRoot {
			err = fmt.Errorf("genesis state root mismatch: block has %s, config gives %s", h.StateRoot, root)
		}
	}
	if err != nil {
		if revertErr := state.RevertToSnapshot(snap); revertErr != nil {
			return arcade.Deployment{}, fmt.Errorf("%w (revert: %v)", err, revertErr)
		}
		return arcade.Deployment{}, err
	}
	return dep, state.Commit()
}

// applyGenesis writes the Alloc balances and the registry deployment to
// state without committing. The registry owner defaults to authority.
func applyGenesis(cfg *Config, state core.State, authority common.Address) (arcade.Deployment, error) {
	for addrHex, amount := range cfg.Genesis.Alloc {
		wei, err := core.ParseEther(amount)
		if err != nil {
			return arcade.Deployment{}, fmt.Errorf("alloc %s: %w", addrHex, err)
		}
		acc := &core.Account{
			Address: common.HexToAddress(addrHex),
			Balance: wei,
		}
		if err := state.SetAccount(acc); err != nil {
			return arcade.Deployment{}, err
		}
	}

	owner := authority
	if cfg.Genesis.Registry.Owner != "" {
		owner = common.HexToAddress(cfg.Genesis.Registry.Owner)
	}
	settings, err := cfg.Genesis.RegistrySettings()
	if err != nil {
		return arcade.Deployment{}, err
	}
	dep, err := arcade.Bootstrap(state, owner, settings)
	if err != nil {
		return arcade.Deployment{}, fmt.Errorf("bootstrap registry: %w", err)
	}
	return dep, nil
}

func genesisTxRoot(chainID uint64) string {
	return crypto.Hash([]byte(fmt.Sprintf("artcade-%d", chainID)))
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
