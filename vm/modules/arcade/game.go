package arcade

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
)

// DomainVersion is the typed-data domain version of score signatures.
const DomainVersion = "1"

// Game is one game instance bound to an execution context.
type Game struct {
	ctx  *vm.Context
	env  Env
	addr common.Address
}

// GameAt binds the game at addr to ctx.
func GameAt(ctx *vm.Context, env Env, addr common.Address) *Game {
	return &Game{ctx: ctx, env: env, addr: addr}
}

// Address returns the instance address.
func (g *Game) Address() common.Address { return g.addr }

// Instance returns the stored instance state.
func (g *Game) Instance() (*core.GameInstance, error) {
	inst, err := g.ctx.State.GetGame(g.addr)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w %s", ErrUnknownGame, g.addr.Hex())
	}
	return inst, err
}

// Player returns the player's state in this game.
func (g *Game) Player(player common.Address) (*core.PlayerState, error) {
	return g.ctx.State.GetPlayer(g.addr, player)
}

// NonceUsed reports whether nonce was consumed for player.
func (g *Game) NonceUsed(player common.Address, nonce *big.Int) (bool, error) {
	return g.ctx.State.IsNonceUsed(g.addr, player, nonce)
}

// Domain returns the typed-data domain score signatures must be bound to.
func (g *Game) Domain() (crypto.Domain, error) {
	inst, err := g.Instance()
	if err != nil {
		return crypto.Domain{}, err
	}
	return g.domain(inst), nil
}

func (g *Game) domain(inst *core.GameInstance) crypto.Domain {
	return crypto.Domain{
		Name:              inst.Settings.Name,
		Version:           DomainVersion,
		ChainID:           g.ctx.ChainID,
		VerifyingContract: g.addr,
	}
}

// Initialize runs the one-time setup of a freshly cloned instance.
func (g *Game) Initialize(registry, owner, credentialAddr, template common.Address, settings core.GameSettings) error {
	if inst, err := g.ctx.State.GetGame(g.addr); err == nil && inst.Initialized {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, g.addr.Hex())
	} else if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	acc, err := g.ctx.State.GetAccount(g.addr)
	if err != nil {
		return err
	}
	acc.Kind = core.KindGame
	if err := g.ctx.State.SetAccount(acc); err != nil {
		return err
	}
	return g.ctx.State.SetGame(&core.GameInstance{
		Address:     g.addr,
		Template:    template,
		Initialized: true,
		Owner:       owner,
		Registry:    registry,
		Credential:  credentialAddr,
		Settings:    settings,
	})
}

func (g *Game) enter() (func(), error) {
	return g.ctx.Guard.Enter(g.addr)
}

func (g *Game) ownerOnly(caller common.Address) (*core.GameInstance, error) {
	inst, err := g.Instance()
	if err != nil {
		return nil, err
	}
	if caller != inst.Owner {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return inst, nil
}

// RegisterPlayer issues the player's credential. Registration is free and
// happens once per player.
func (g *Game) RegisterPlayer(player common.Address) (uint64, error) {
	release, err := g.enter()
	if err != nil {
		return 0, err
	}
	defer release()

	inst, err := g.Instance()
	if err != nil {
		return 0, err
	}
	if inst.Paused {
		return 0, ErrPaused
	}
	ps, err := g.Player(player)
	if err != nil {
		return 0, err
	}
	if ps.CredentialID != 0 {
		return 0, fmt.Errorf("%w: %s holds credential %d", ErrAlreadyRegistered, player.Hex(), ps.CredentialID)
	}

	store := g.env.Credentials(inst.Credential)
	supply, err := store.TotalSupply()
	if err != nil {
		return 0, err
	}
	next := supply + 1
	uri := inst.Settings.BaseURI + "/" + strconv.FormatUint(next, 10)
	id, err := store.Mint(g.addr, player, uri)
	if err != nil {
		return 0, fmt.Errorf("mint credential: %w", err)
	}
	if id != next {
		return 0, fmt.Errorf("credential store issued id %d, expected %d", id, next)
	}

	ps.CredentialID = id
	if err := g.ctx.State.SetPlayer(ps); err != nil {
		return 0, err
	}
	g.ctx.Emit(events.EventPlayerRegistered, map[string]any{
		"game":          g.addr.Hex(),
		"player":        player.Hex(),
		"credential_id": id,
	})
	return id, nil
}

// Submission is a signed score attestation.
type Submission struct {
	Player    common.Address
	Score     uint64
	Nonce     *big.Int
	Signature []byte
}

// SubmitScore validates a signed score and settles it. payment is the value
// attached to the call, already held by the game account. Checks run in a
// fixed order and the first failure is reported.
func (g *Game) SubmitScore(sub Submission, payment *big.Int) error {
	release, err := g.enter()
	if err != nil {
		return err
	}
	defer release()

	nonce := sub.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	// Signatures commit to the nonce as an unsigned 256-bit word.
	if nonce.Sign() < 0 || nonce.BitLen() > 256 {
		return fmt.Errorf("%w: %s", ErrInvalidNonce, nonce)
	}

	inst, err := g.Instance()
	if err != nil {
		return err
	}
	if inst.Paused {
		return ErrPaused
	}
	used, err := g.NonceUsed(sub.Player, nonce)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: %s for %s", ErrNonceUsed, nonce, sub.Player.Hex())
	}
	if inst.Settings.MaxScore == 0 {
		return fmt.Errorf("%w: game accepts no scores (max score 0)", ErrInvalidScore)
	}
	if sub.Score > inst.Settings.MaxScore {
		return fmt.Errorf("%w: %d > %d", ErrInvalidScore, sub.Score, inst.Settings.MaxScore)
	}
	ps, err := g.Player(sub.Player)
	if err != nil {
		return err
	}
	if ps.CredentialID == 0 {
		return fmt.Errorf("%w: %s", ErrPlayerNotRegistered, sub.Player.Hex())
	}
	owner, err := g.env.Credentials(inst.Credential).OwnerOf(ps.CredentialID)
	if err != nil || owner != sub.Player {
		return fmt.Errorf("%w: credential %d", ErrPlayerDoesNotOwnCredential, ps.CredentialID)
	}
	digest := g.domain(inst).ScoreDigest(sub.Player, sub.Score, nonce)
	signer, err := crypto.Recover(digest, sub.Signature)
	if err != nil || signer != inst.Settings.Signer {
		return ErrInvalidSignature
	}

	if err := g.ctx.State.MarkNonceUsed(g.addr, sub.Player, nonce); err != nil {
		return err
	}
	if sub.Score > ps.HighScore {
		ps.HighScore = sub.Score
		if err := g.ctx.State.SetPlayer(ps); err != nil {
			return err
		}
		g.ctx.Emit(events.EventHighScoreUpdated, map[string]any{
			"game":          g.addr.Hex(),
			"player":        sub.Player.Hex(),
			"credential_id": ps.CredentialID,
			"score":         sub.Score,
		})
	}
	return g.settle(inst, sub.Player, sub.Score, payment)
}

// settle splits the payment and dispenses tickets. Registry settings are
// read once for the whole settlement.
func (g *Game) settle(inst *core.GameInstance, player common.Address, score uint64, payment *big.Int) error {
	reg := RegistryAt(g.ctx, g.env, inst.Registry)
	settings, err := reg.Settings()
	if err != nil {
		return err
	}
	if payment == nil {
		payment = new(big.Int)
	}
	price := settings.PricePerGame
	if price == nil {
		price = new(big.Int)
	}
	if payment.Cmp(price) != 0 {
		return fmt.Errorf("%w: got %s want %s", ErrInvalidPayment, payment, price)
	}

	protocolFee, operatorShare := SplitFee(payment, settings.ProtocolFeeBps)
	if err := g.env.Payments.Transfer(g.addr, settings.ProtocolRecipient, protocolFee, settings.NativeWrapper); err != nil {
		return fmt.Errorf("pay protocol fee: %w", err)
	}
	if err := g.env.Payments.Transfer(g.addr, inst.Settings.FeeRecipient, operatorShare, settings.NativeWrapper); err != nil {
		return fmt.Errorf("pay operator share: %w", err)
	}

	tickets := TicketsFor(settings.MaxTicketsPerGame, score, inst.Settings.MaxScore)
	if err := reg.DispenseTickets(g.addr, player, tickets); err != nil {
		return fmt.Errorf("dispense tickets: %w", err)
	}
	g.ctx.Emit(events.EventScoreSettled, map[string]any{
		"game":           g.addr.Hex(),
		"player":         player.Hex(),
		"score":          score,
		"payment":        payment.String(),
		"protocol_fee":   protocolFee.String(),
		"operator_share": operatorShare.String(),
		"tickets":        tickets,
	})
	return nil
}

// UpdateSettings replaces the whole settings struct.
func (g *Game) UpdateSettings(caller common.Address, settings core.GameSettings) error {
	release, err := g.enter()
	if err != nil {
		return err
	}
	defer release()

	inst, err := g.ownerOnly(caller)
	if err != nil {
		return err
	}
	old := inst.Settings
	inst.Settings = settings
	if err := g.ctx.State.SetGame(inst); err != nil {
		return err
	}
	g.ctx.Emit(events.EventSettingsChanged, map[string]any{
		"instance": g.addr.Hex(),
		"actor":    caller.Hex(),
		"old":      old,
		"new":      settings,
	})
	return nil
}

// SetPaused toggles the pause flag. Views stay available while paused.
func (g *Game) SetPaused(caller common.Address, paused bool) error {
	release, err := g.enter()
	if err != nil {
		return err
	}
	defer release()

	inst, err := g.ownerOnly(caller)
	if err != nil {
		return err
	}
	inst.Paused = paused
	if err := g.ctx.State.SetGame(inst); err != nil {
		return err
	}
	g.ctx.Emit(events.EventPausedChanged, map[string]any{
		"instance": g.addr.Hex(),
		"actor":    caller.Hex(),
		"paused":   paused,
	})
	return nil
}

// TransferOwnership hands administration of the game to newOwner.
func (g *Game) TransferOwnership(caller, newOwner common.Address) error {
	release, err := g.enter()
	if err != nil {
		return err
	}
	defer release()

	inst, err := g.ownerOnly(caller)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: zero owner", ErrInvalidSettings)
	}
	inst.Owner = newOwner
	if err := g.ctx.State.SetGame(inst); err != nil {
		return err
	}
	g.ctx.Emit(events.EventOwnershipTransferred, map[string]any{
		"instance":  g.addr.Hex(),
		"old_owner": caller.Hex(),
		"new_owner": newOwner.Hex(),
	})
	return nil
}

// HighScore returns the best accepted score of player.
func (g *Game) HighScore(player common.Address) (uint64, error) {
	ps, err := g.Player(player)
	if err != nil {
		return 0, err
	}
	return ps.HighScore, nil
}

// PlayerCredential returns the credential id of player, 0 when unregistered.
func (g *Game) PlayerCredential(player common.Address) (uint64, error) {
	ps, err := g.Player(player)
	if err != nil {
		return 0, err
	}
	return ps.CredentialID, nil
}
