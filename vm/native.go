package vm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
)

// ErrInsufficientBalance is returned when an account cannot cover a debit.
var ErrInsufficientBalance = errors.New("insufficient balance")

// MoveNative moves amount of native balance between two accounts without
// consulting any receive behaviour of the recipient.
func MoveNative(state core.State, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount)
	}
	sender, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), sender.Balance, amount)
	}
	sender.Balance.Sub(sender.Balance, amount)
	if err := state.SetAccount(sender); err != nil {
		return err
	}
	recipient, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	recipient.Balance.Add(recipient.Balance, amount)
	return state.SetAccount(recipient)
}
