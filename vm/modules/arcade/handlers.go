package arcade

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/vm"
)

func init() {
	vm.Register(core.TxCreateGame, handleCreateGame)
	vm.Register(core.TxRegisterPlayer, handleRegisterPlayer)
	vm.RegisterPayable(core.TxSubmitScore, handleSubmitScore)
	vm.Register(core.TxUpdateGameSettings, handleUpdateGameSettings)
	vm.Register(core.TxSetGamePaused, handleSetGamePaused)
	vm.Register(core.TxUpdateRegistrySettings, handleUpdateRegistrySettings)
	vm.Register(core.TxSetTicketAdjustment, handleSetTicketAdjustment)
	vm.Register(core.TxSetRegistryPaused, handleSetRegistryPaused)
	vm.Register(core.TxDispenseTickets, handleDispenseTickets)
	vm.Register(core.TxTransferOwnership, handleTransferOwnership)
}

func decode(ctx *vm.Context, payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", ctx.Tx.Type, err)
	}
	return nil
}

func handleCreateGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CreateGamePayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	if p.Name == "" {
		return errors.New("game name required")
	}
	_, err := RegistryAt(ctx, NewEnv(ctx), ctx.Tx.To).CreateGame(ctx.Caller(), GameParams{
		Name:           p.Name,
		BaseURI:        p.BaseURI,
		Signer:         p.Signer,
		MaxScore:       p.MaxScore,
		FeeRecipient:   p.FeeRecipient,
		CredentialInit: p.CredentialInit,
	})
	return err
}

func handleRegisterPlayer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RegisterPlayerPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	player := p.Player
	if player == (common.Address{}) {
		player = ctx.Caller()
	}
	_, err := GameAt(ctx, NewEnv(ctx), ctx.Tx.To).RegisterPlayer(player)
	return err
}

// handleSubmitScore is the only payable arcade handler: the attached value
// is the play payment.
func handleSubmitScore(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SubmitScorePayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	player := p.Player
	if player == (common.Address{}) {
		player = ctx.Caller()
	}
	nonce := new(big.Int)
	if p.Nonce != nil {
		nonce = p.Nonce.ToInt()
	}
	return GameAt(ctx, NewEnv(ctx), ctx.Tx.To).SubmitScore(Submission{
		Player:    player,
		Score:     p.Score,
		Nonce:     nonce,
		Signature: p.Signature,
	}, ctx.Tx.AttachedValue())
}

func handleUpdateGameSettings(ctx *vm.Context, payload json.RawMessage) error {
	var p core.UpdateGameSettingsPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	return GameAt(ctx, NewEnv(ctx), ctx.Tx.To).UpdateSettings(ctx.Caller(), p.Settings)
}

func handleSetGamePaused(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetPausedPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	return GameAt(ctx, NewEnv(ctx), ctx.Tx.To).SetPaused(ctx.Caller(), p.Paused)
}

func handleUpdateRegistrySettings(ctx *vm.Context, payload json.RawMessage) error {
	var p core.UpdateRegistrySettingsPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	return RegistryAt(ctx, NewEnv(ctx), ctx.Tx.To).UpdateSettings(ctx.Caller(), p.Settings)
}

func handleSetTicketAdjustment(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetTicketAdjustmentPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	return RegistryAt(ctx, NewEnv(ctx), ctx.Tx.To).SetTicketAdjustment(ctx.Caller(), p.Game, p.Adjustment)
}

func handleSetRegistryPaused(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetPausedPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	return RegistryAt(ctx, NewEnv(ctx), ctx.Tx.To).SetPaused(ctx.Caller(), p.Paused)
}

// handleDispenseTickets exposes the registry gate to direct calls. Only
// created games pass it, so externally signed calls always fail.
func handleDispenseTickets(ctx *vm.Context, payload json.RawMessage) error {
	var p core.DispenseTicketsPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	return RegistryAt(ctx, NewEnv(ctx), ctx.Tx.To).DispenseTickets(ctx.Caller(), p.Player, p.Amount)
}

// handleTransferOwnership targets either a registry or a game, whichever
// lives at tx.To.
func handleTransferOwnership(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferOwnershipPayload
	if err := decode(ctx, payload, &p); err != nil {
		return err
	}
	acc, err := ctx.State.GetAccount(ctx.Tx.To)
	if err != nil {
		return err
	}
	env := NewEnv(ctx)
	switch acc.Kind {
	case core.KindRegistry:
		return RegistryAt(ctx, env, ctx.Tx.To).TransferOwnership(ctx.Caller(), p.NewOwner)
	case core.KindGame:
		return GameAt(ctx, env, ctx.Tx.To).TransferOwnership(ctx.Caller(), p.NewOwner)
	default:
		return fmt.Errorf("%s does not support ownership transfer", ctx.Tx.To.Hex())
	}
}
