package token_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/internal/testutil"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/vm/modules/economy"
	"github.com/tolelom/artcade/vm/modules/token"
)

var (
	tickets = common.HexToAddress("0x0000000000000000000000000000000000007ac0")
	wrapper = common.HexToAddress("0x0000000000000000000000000000000000007ac1")
	minter  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	ticket  = big.NewInt(1)
)

func TestMint(t *testing.T) {
	r := require.New(t)
	state := testutil.NewStateDB()
	r.NoError(token.Deploy(state, tickets, "Tickets", minter, false))
	r.Error(token.Deploy(state, tickets, "Tickets", minter, false))

	ctx := vm.NewContext(state, nil, nil, 1, nil)
	s := token.At(ctx, tickets)
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")

	r.ErrorIs(s.Mint(a, ticket, []common.Address{a}, []*big.Int{big.NewInt(1)}), token.ErrNotMinter)
	r.ErrorIs(s.Mint(minter, ticket, []common.Address{a, b}, []*big.Int{big.NewInt(1)}), token.ErrLengthMismatch)
	r.NoError(s.Mint(minter, ticket, []common.Address{a, b}, []*big.Int{big.NewInt(3), big.NewInt(4)}))
	r.NoError(s.Mint(minter, ticket, []common.Address{a}, []*big.Int{big.NewInt(2)}))

	bal, err := s.BalanceOf(a, ticket)
	r.NoError(err)
	r.Equal(int64(5), bal.Int64())
	bal, err = s.BalanceOf(b, big.NewInt(2))
	r.NoError(err)
	r.Zero(bal.Sign())
	r.Len(ctx.Events(), 3)

	r.ErrorIs(token.At(ctx, wrapper).Mint(minter, ticket, nil, nil), token.ErrUnknownToken)
}

type chain struct {
	state core.State
	exec  *vm.Executor
	block *core.Block
	key   crypto.PrivateKey
	nonce uint64
}

func newChain(t *testing.T) *chain {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	state := testutil.NewStateDB()
	require.NoError(t, state.SetAccount(&core.Account{Address: key.Address(), Balance: big.NewInt(100)}))
	require.NoError(t, token.Deploy(state, tickets, "Tickets", minter, false))
	require.NoError(t, token.Deploy(state, wrapper, "Wrapped", common.Address{}, true))
	return &chain{
		state: state,
		exec:  vm.NewExecutor(state, events.NewEmitter(), 1),
		block: core.NewBlock(1, "", key.Address(), nil),
		key:   key,
	}
}

func (c *chain) send(t *testing.T, typ core.TxType, to common.Address, value *big.Int, payload any) error {
	t.Helper()
	tx, err := core.NewTransaction(1, typ, c.key.Address(), to, c.nonce, value, payload)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(c.key))
	err = c.exec.ExecuteTx(c.block, tx)
	if err == nil {
		c.nonce++
	}
	return err
}

func TestTransferTokenHandler(t *testing.T) {
	r := require.New(t)
	c := newChain(t)
	ctx := vm.NewContext(c.state, nil, nil, 1, nil)
	r.NoError(token.At(ctx, tickets).Mint(minter, ticket, []common.Address{c.key.Address()}, []*big.Int{big.NewInt(10)}))

	to := common.HexToAddress("0x0b")
	r.NoError(c.send(t, core.TxTransferToken, tickets, nil, core.TransferTokenPayload{ID: ticket, To: to, Amount: big.NewInt(4)}))
	r.Error(c.send(t, core.TxTransferToken, tickets, nil, core.TransferTokenPayload{ID: ticket, To: to, Amount: big.NewInt(7)}))

	bal, err := c.state.GetTokenBalance(tickets, ticket, to)
	r.NoError(err)
	r.Equal(int64(4), bal.Int64())
	bal, err = c.state.GetTokenBalance(tickets, ticket, c.key.Address())
	r.NoError(err)
	r.Equal(int64(6), bal.Int64())
}

func TestWrapUnwrap(t *testing.T) {
	r := require.New(t)
	c := newChain(t)

	// Paying the wrapper deposits and credits wrapped units to the payer.
	ctx := vm.NewContext(c.state, nil, nil, 1, nil)
	r.NoError(economy.Pay(ctx, c.key.Address(), wrapper, big.NewInt(30), wrapper))

	r.ErrorIs(c.send(t, core.TxUnwrap, wrapper, big.NewInt(1), core.UnwrapPayload{Amount: big.NewInt(10)}), vm.ErrNotPayable)
	r.Error(c.send(t, core.TxUnwrap, tickets, nil, core.UnwrapPayload{Amount: big.NewInt(10)}))
	r.Error(c.send(t, core.TxUnwrap, wrapper, nil, core.UnwrapPayload{Amount: big.NewInt(31)}))
	r.NoError(c.send(t, core.TxUnwrap, wrapper, nil, core.UnwrapPayload{Amount: big.NewInt(10)}))

	acc, err := c.state.GetAccount(c.key.Address())
	r.NoError(err)
	r.Equal(int64(80), acc.Balance.Int64())
	left, err := c.state.GetTokenBalance(wrapper, economy.WrappedUnitID, c.key.Address())
	r.NoError(err)
	r.Equal(int64(20), left.Int64())
}
