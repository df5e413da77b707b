package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return errors.New("transfer amount must be > 0")
	}
	if p.To == (common.Address{}) {
		return errors.New("transfer to address required")
	}

	if err := vm.MoveNative(ctx.State, ctx.Tx.From, p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventValueTransfer, map[string]any{
		"from":   ctx.Tx.From.Hex(),
		"to":     p.To.Hex(),
		"amount": p.Amount.String(),
	})
	return nil
}
