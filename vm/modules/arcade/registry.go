package arcade

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
)

// Registry is a game registry bound to an execution context.
type Registry struct {
	ctx  *vm.Context
	env  Env
	addr common.Address
}

// RegistryAt binds the registry at addr to ctx.
func RegistryAt(ctx *vm.Context, env Env, addr common.Address) *Registry {
	return &Registry{ctx: ctx, env: env, addr: addr}
}

// Address returns the registry address.
func (r *Registry) Address() common.Address { return r.addr }

// State returns the stored registry.
func (r *Registry) State() (*core.Registry, error) {
	reg, err := r.ctx.State.GetRegistry(r.addr)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w %s", ErrUnknownRegistry, r.addr.Hex())
	}
	return reg, err
}

// Settings returns a snapshot of the registry settings.
func (r *Registry) Settings() (core.RegistrySettings, error) {
	reg, err := r.State()
	if err != nil {
		return core.RegistrySettings{}, err
	}
	return reg.Settings.Copy(), nil
}

// Record returns the registry's record of game.
func (r *Registry) Record(game common.Address) (*core.GameRecord, error) {
	return r.ctx.State.GetGameRecord(r.addr, game)
}

// GameSalt is the CREATE2 salt of a game created by creator under name.
func GameSalt(name string, creator common.Address) common.Hash {
	return crypto.HashBytes([]byte(name), creator.Bytes())
}

// PredictGameAddress returns the address CreateGame uses for (name, creator).
func PredictGameAddress(registry, template common.Address, name string, creator common.Address) common.Address {
	return crypto.CloneAddress(registry, template, GameSalt(name, creator))
}

// PredictGameAddress is the bound form of the package-level function, using
// the registry's current game template.
func (r *Registry) PredictGameAddress(name string, creator common.Address) (common.Address, error) {
	settings, err := r.Settings()
	if err != nil {
		return common.Address{}, err
	}
	return PredictGameAddress(r.addr, settings.GameTemplate, name, creator), nil
}

func (r *Registry) ownerOnly(caller common.Address) (*core.Registry, error) {
	reg, err := r.State()
	if err != nil {
		return nil, err
	}
	if caller != reg.Owner {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return reg, nil
}

// GameParams are the caller-supplied parameters of a new game.
type GameParams struct {
	Name           string
	BaseURI        string
	Signer         common.Address
	MaxScore       uint64
	FeeRecipient   common.Address
	CredentialInit []byte
}

// CreateGame clones the game template for caller and deploys its credential
// collection. The caller becomes the game owner.
func (r *Registry) CreateGame(caller common.Address, p GameParams) (common.Address, error) {
	release, err := r.ctx.Guard.Enter(r.addr)
	if err != nil {
		return common.Address{}, err
	}
	defer release()

	reg, err := r.State()
	if err != nil {
		return common.Address{}, err
	}
	if reg.Paused {
		return common.Address{}, ErrPaused
	}
	settings := reg.Settings.Copy()
	if tmpl, err := r.ctx.State.GetGame(settings.GameTemplate); err != nil || !tmpl.Initialized {
		return common.Address{}, fmt.Errorf("%w: game template %s not deployed", ErrInvalidSettings, settings.GameTemplate.Hex())
	}

	gameAddr := PredictGameAddress(r.addr, settings.GameTemplate, p.Name, caller)
	if _, err := r.ctx.State.GetGame(gameAddr); err == nil {
		return common.Address{}, fmt.Errorf("%w: %q by %s at %s", ErrGameExists, p.Name, caller.Hex(), gameAddr.Hex())
	} else if !errors.Is(err, core.ErrNotFound) {
		return common.Address{}, err
	}
	if acc, err := r.ctx.State.GetAccount(gameAddr); err != nil {
		return common.Address{}, err
	} else if acc.Kind != core.KindExternal {
		return common.Address{}, fmt.Errorf("%w: %s is a %s account", ErrGameExists, gameAddr.Hex(), acc.Kind)
	}

	kind, version := settings.Credential.Kind, settings.Credential.Version
	predicted, err := r.env.Deployer.PredictAddress(r.addr, kind, p.CredentialInit, version)
	if err != nil {
		return common.Address{}, fmt.Errorf("predict credential address: %w", err)
	}
	credAddr, err := r.env.Deployer.Deploy(r.addr, kind, p.CredentialInit, version)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy credential: %w", err)
	}
	if credAddr != predicted {
		return common.Address{}, fmt.Errorf("%w: predicted %s got %s", ErrAddressMismatch, predicted.Hex(), credAddr.Hex())
	}
	isAdmin, err := r.env.Credentials(credAddr).HasAdminRole(gameAddr)
	if err != nil {
		return common.Address{}, err
	}
	if !isAdmin {
		return common.Address{}, fmt.Errorf("%w: %s on %s", ErrGameNotCredentialAdmin, gameAddr.Hex(), credAddr.Hex())
	}

	game := GameAt(r.ctx, r.env, gameAddr)
	err = game.Initialize(r.addr, caller, credAddr, settings.GameTemplate, core.GameSettings{
		Name:         p.Name,
		BaseURI:      p.BaseURI,
		Signer:       p.Signer,
		MaxScore:     p.MaxScore,
		FeeRecipient: p.FeeRecipient,
	})
	if err != nil {
		return common.Address{}, err
	}
	err = r.ctx.State.SetGameRecord(&core.GameRecord{
		Registry: r.addr,
		Game:     gameAddr,
		Creator:  caller,
		Created:  true,
	})
	if err != nil {
		return common.Address{}, err
	}
	r.ctx.Emit(events.EventGameCreated, map[string]any{
		"registry":   r.addr.Hex(),
		"game":       gameAddr.Hex(),
		"creator":    caller.Hex(),
		"name":       p.Name,
		"credential": credAddr.Hex(),
	})
	return gameAddr, nil
}

// DispenseTickets mints reward tickets to player on behalf of a created
// game, after the game's adjustment is subtracted.
func (r *Registry) DispenseTickets(caller, player common.Address, amount uint64) error {
	release, err := r.ctx.Guard.Enter(r.addr)
	if err != nil {
		return err
	}
	defer release()

	rec, err := r.Record(caller)
	if err != nil {
		return err
	}
	if !rec.Created {
		return fmt.Errorf("%w: %s", ErrNotAllowed, caller.Hex())
	}
	reg, err := r.State()
	if err != nil {
		return err
	}
	if reg.Paused {
		return ErrPaused
	}

	adjusted := ApplyAdjustment(amount, rec.RewardAdjustment)
	if adjusted > 0 {
		id := reg.Settings.TicketID
		if id == nil {
			id = new(big.Int)
		}
		err := r.env.Rewards(reg.Settings.TicketToken).Mint(
			r.addr, id,
			[]common.Address{player},
			[]*big.Int{new(big.Int).SetUint64(adjusted)},
		)
		if err != nil {
			return fmt.Errorf("mint tickets: %w", err)
		}
	}
	r.ctx.Emit(events.EventTicketsDispensed, map[string]any{
		"registry":  r.addr.Hex(),
		"game":      caller.Hex(),
		"player":    player.Hex(),
		"requested": amount,
		"amount":    adjusted,
	})
	return nil
}

// ValidateSettings rejects settings no registry can operate with.
func ValidateSettings(s core.RegistrySettings) error {
	if s.ProtocolFeeBps > BasisPoints {
		return fmt.Errorf("%w: protocol fee %d bps exceeds %d", ErrInvalidSettings, s.ProtocolFeeBps, BasisPoints)
	}
	if s.PricePerGame != nil && s.PricePerGame.Sign() < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidSettings)
	}
	return nil
}

// UpdateSettings replaces the whole registry settings struct.
func (r *Registry) UpdateSettings(caller common.Address, settings core.RegistrySettings) error {
	release, err := r.ctx.Guard.Enter(r.addr)
	if err != nil {
		return err
	}
	defer release()

	reg, err := r.ownerOnly(caller)
	if err != nil {
		return err
	}
	if err := ValidateSettings(settings); err != nil {
		return err
	}
	old := reg.Settings
	reg.Settings = settings.Copy()
	if err := r.ctx.State.SetRegistry(reg); err != nil {
		return err
	}
	r.ctx.Emit(events.EventSettingsChanged, map[string]any{
		"instance": r.addr.Hex(),
		"actor":    caller.Hex(),
		"old":      old,
		"new":      reg.Settings,
	})
	return nil
}

// SetTicketAdjustment sets the flat adjustment applied to game's ticket
// dispenses. game need not have been created yet.
func (r *Registry) SetTicketAdjustment(caller, game common.Address, adjustment uint64) error {
	release, err := r.ctx.Guard.Enter(r.addr)
	if err != nil {
		return err
	}
	defer release()

	if _, err := r.ownerOnly(caller); err != nil {
		return err
	}
	rec, err := r.Record(game)
	if err != nil {
		return err
	}
	old := rec.RewardAdjustment
	rec.RewardAdjustment = adjustment
	if err := r.ctx.State.SetGameRecord(rec); err != nil {
		return err
	}
	r.ctx.Emit(events.EventTicketAdjustmentChanged, map[string]any{
		"registry": r.addr.Hex(),
		"actor":    caller.Hex(),
		"game":     game.Hex(),
		"old":      old,
		"new":      adjustment,
	})
	return nil
}

// SetPaused toggles the registry pause flag.
func (r *Registry) SetPaused(caller common.Address, paused bool) error {
	release, err := r.ctx.Guard.Enter(r.addr)
	if err != nil {
		return err
	}
	defer release()

	reg, err := r.ownerOnly(caller)
	if err != nil {
		return err
	}
	reg.Paused = paused
	if err := r.ctx.State.SetRegistry(reg); err != nil {
		return err
	}
	r.ctx.Emit(events.EventPausedChanged, map[string]any{
		"instance": r.addr.Hex(),
		"actor":    caller.Hex(),
		"paused":   paused,
	})
	return nil
}

// TransferOwnership hands administration of the registry to newOwner.
func (r *Registry) TransferOwnership(caller, newOwner common.Address) error {
	release, err := r.ctx.Guard.Enter(r.addr)
	if err != nil {
		return err
	}
	defer release()

	reg, err := r.ownerOnly(caller)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: zero owner", ErrInvalidSettings)
	}
	reg.Owner = newOwner
	if err := r.ctx.State.SetRegistry(reg); err != nil {
		return err
	}
	r.ctx.Emit(events.EventOwnershipTransferred, map[string]any{
		"instance":  r.addr.Hex(),
		"old_owner": caller.Hex(),
		"new_owner": newOwner.Hex(),
	})
	return nil
}
