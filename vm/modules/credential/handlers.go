package credential

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
	vm.Register(core.TxTransferCredential, handleTransferCredential)
}

// handleTransferCredential moves a credential of the collection at tx.To.
func handleTransferCredential(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferCredentialPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_credential payload: %w", err)
	}
	if p.To == (common.Address{}) {
		return errors.New("to address required")
	}

	cred, err := ctx.State.GetCredential(ctx.Tx.To, p.ID)
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrUnknownCredential, p.ID, err)
	}
	if cred.Owner != ctx.Tx.From {
		return errors.New("only the credential owner can transfer it")
	}
	cred.Owner = p.To
	if err := ctx.State.SetCredential(cred); err != nil {
		return err
	}

	ctx.Emit(events.EventCredentialTransfer, map[string]any{
		"contract": ctx.Tx.To.Hex(),
		"id":       p.ID,
		"from":     ctx.Tx.From.Hex(),
		"to":       p.To.Hex(),
	})
	return nil
}
