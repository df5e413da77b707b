// Package token implements multi-token contracts: the reward ticket store
// and the native wrapper used when a recipient refuses native payments.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/vm/modules/economy"
)

var (
	ErrNotMinter      = errors.New("caller is not the token minter")
	ErrLengthMismatch = errors.New("recipients and amounts length mismatch")
	ErrUnknownToken   = errors.New("unknown token contract")
)

func init() {
	economy.RegisterReceiver(core.KindToken, receiveNative)
}

// Deploy creates a token contract at addr. Wrapper contracts accept native
// deposits and back unit id 0 one-to-one.
func Deploy(state core.State, addr common.Address, name string, minter common.Address, wrapper bool) error {
	if _, err := state.GetTokenContract(addr); err == nil {
		return fmt.Errorf("token contract %s already exists", addr.Hex())
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	acc, err := state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Kind = core.KindToken
	if err := state.SetAccount(acc); err != nil {
		return err
	}
	return state.SetTokenContract(&core.TokenContract{
		Address: addr,
		Name:    name,
		Minter:  minter,
		Wrapper: wrapper,
	})
}

// Store is a token contract bound to an execution context.
type Store struct {
	ctx  *vm.Context
	addr common.Address
}

// At binds the token contract at addr to ctx.
func At(ctx *vm.Context, addr common.Address) *Store {
	return &Store{ctx: ctx, addr: addr}
}

// Mint credits amounts[i] of unit id to recipients[i]. Only the minter may
// mint.
func (s *Store) Mint(caller common.Address, id *big.Int, recipients []common.Address, amounts []*big.Int) error {
	tc, err := s.ctx.State.GetTokenContract(s.addr)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrUnknownToken, s.addr.Hex(), err)
	}
	if caller != tc.Minter {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller.Hex())
	}
	if len(recipients) != len(amounts) {
		return ErrLengthMismatch
	}
	for i, to := range recipients {
		if amounts[i] == nil || amounts[i].Sign() < 0 {
			return fmt.Errorf("invalid mint amount for %s", to.Hex())
		}
		if err := s.credit(id, to, amounts[i]); err != nil {
			return err
		}
		s.ctx.Emit(events.EventTokenMinted, map[string]any{
			"token":  s.addr.Hex(),
			"id":     id.String(),
			"to":     to.Hex(),
			"amount": amounts[i].String(),
		})
	}
	return nil
}

// BalanceOf returns the units of id held by account.
func (s *Store) BalanceOf(account common.Address, id *big.Int) (*big.Int, error) {
	return s.ctx.State.GetTokenBalance(s.addr, id, account)
}

func (s *Store) credit(id *big.Int, to common.Address, amount *big.Int) error {
	bal, err := s.ctx.State.GetTokenBalance(s.addr, id, to)
	if err != nil {
		return err
	}
	return s.ctx.State.SetTokenBalance(s.addr, id, to, bal.Add(bal, amount))
}

func (s *Store) debit(id *big.Int, from common.Address, amount *big.Int) error {
	bal, err := s.ctx.State.GetTokenBalance(s.addr, id, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient token balance: have %s need %s", bal, amount)
	}
	return s.ctx.State.SetTokenBalance(s.addr, id, from, bal.Sub(bal, amount))
}

// receiveNative lets wrapper contracts accept direct native payments as
// deposits credited to the payer. Other token contracts refuse.
func receiveNative(ctx *vm.Context, from, to common.Address, amount *big.Int) error {
	tc, err := ctx.State.GetTokenContract(to)
	if err != nil || !tc.Wrapper {
		return economy.ErrRefused
	}
	return At(ctx, to).credit(economy.WrappedUnitID, from, amount)
}
