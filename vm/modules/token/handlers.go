package token

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/vm/modules/economy"
)

func init() {
	vm.Register(core.TxTransferToken, handleTransferToken)
	vm.Register(core.TxUnwrap, handleUnwrap)
}

func handleTransferToken(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferTokenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_token payload: %w", err)
	}
	if p.ID == nil || p.Amount == nil || p.Amount.Sign() <= 0 {
		return errors.New("id and positive amount required")
	}
	if p.To == (common.Address{}) {
		return errors.New("to address required")
	}
	if _, err := ctx.State.GetTokenContract(ctx.Tx.To); err != nil {
		return fmt.Errorf("%w %s: %v", ErrUnknownToken, ctx.Tx.To.Hex(), err)
	}

	s := At(ctx, ctx.Tx.To)
	if err := s.debit(p.ID, ctx.Tx.From, p.Amount); err != nil {
		return err
	}
	if err := s.credit(p.ID, p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"token":  ctx.Tx.To.Hex(),
		"id":     p.ID.String(),
		"from":   ctx.Tx.From.Hex(),
		"to":     p.To.Hex(),
		"amount": p.Amount.String(),
	})
	return nil
}

// handleUnwrap burns wrapped units and pays the native amount back.
func handleUnwrap(ctx *vm.Context, payload json.RawMessage) error {
	var p core.UnwrapPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode unwrap payload: %w", err)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return errors.New("unwrap amount must be > 0")
	}
	tc, err := ctx.State.GetTokenContract(ctx.Tx.To)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrUnknownToken, ctx.Tx.To.Hex(), err)
	}
	if !tc.Wrapper {
		return fmt.Errorf("token %s is not a native wrapper", tc.Address.Hex())
	}

	if err := At(ctx, tc.Address).debit(economy.WrappedUnitID, ctx.Tx.From, p.Amount); err != nil {
		return err
	}
	if err := vm.MoveNative(ctx.State, tc.Address, ctx.Tx.From, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventValueTransfer, map[string]any{
		"from":   tc.Address.Hex(),
		"to":     ctx.Tx.From.Hex(),
		"amount": p.Amount.String(),
	})
	return nil
}
