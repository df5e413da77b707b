package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
)

// ErrNotPayable is returned when value is attached to a call whose handler
// does not accept payment.
var ErrNotPayable = errors.New("call is not payable")

// Context is passed to every Handler and provides access to the ledger
// state, the current block, the triggering transaction and the instance
// guard. Events are buffered and only published if the transaction succeeds.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	ChainID uint64
	Guard   *Guard

	pending []events.Event
}

// NewContext builds a standalone Context, mainly for direct module calls.
func NewContext(state core.State, block *core.Block, tx *core.Transaction, chainID uint64, guard *Guard) *Context {
	if guard == nil {
		guard = NewGuard()
	}
	return &Context{State: state, Block: block, Tx: tx, ChainID: chainID, Guard: guard}
}

// Caller returns the signer of the triggering transaction.
func (c *Context) Caller() common.Address {
	if c.Tx == nil {
		return common.Address{}
	}
	return c.Tx.From
}

// Emit buffers an event for publication after the transaction commits.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	ev := events.Event{Type: typ, Data: data}
	if c.Tx != nil {
		ev.TxID = c.Tx.ID
	}
	if c.Block != nil {
		ev.BlockHeight = c.Block.Header.Height
	}
	c.pending = append(c.pending, ev)
}

// Events returns the buffered events.
func (c *Context) Events() []events.Event {
	return c.pending
}

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state   core.State
	emitter *events.Emitter
	chainID uint64
	guard   *Guard
}

// NewExecutor creates an Executor for chainID with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter, chainID uint64) *Executor {
	return &Executor{state: state, emitter: emitter, chainID: chainID, guard: NewGuard()}
}

// ChainID returns the chain the executor accepts transactions for.
func (e *Executor) ChainID() uint64 { return e.chainID }

// Guard exposes the instance guard shared by every execution context.
func (e *Executor) Guard() *Guard { return e.guard }

// ExecuteBlock replays the transactions of a sealed block. The sequencer
// only seals transactions that succeeded, so any failure means the block
// does not match the local state and the whole block is rejected. Effects
// of earlier transactions are left in place for the caller to revert. The
// events are returned unpublished.
func (e *Executor) ExecuteBlock(block *core.Block) ([]events.Event, error) {
	var out []events.Event
	for _, tx := range block.Transactions {
		evs, err := e.ApplyTx(block, tx)
		if err != nil {
			return nil, fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
		out = append(out, evs...)
	}
	return out, nil
}

// ExecuteTx applies tx and publishes its events at once.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	evs, err := e.ApplyTx(block, tx)
	if err != nil {
		return err
	}
	e.Publish(evs)
	return nil
}

// ApplyTx verifies and executes a single transaction with snapshot/rollback.
// Either every effect of the transaction is kept or none is. The events it
// produced, closed by a tx_executed event, are returned for the caller to
// publish once the effects are durable.
func (e *Executor) ApplyTx(block *core.Block, tx *core.Transaction) ([]events.Event, error) {
	if tx.ChainID != e.chainID {
		return nil, fmt.Errorf("%w: got %d want %d", core.ErrWrongChainID, tx.ChainID, e.chainID)
	}
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	if tx.ID == "" {
		tx.ID = tx.Hash()
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx := NewContext(e.state, block, tx, e.chainID, e.guard)
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return nil, err
	}

	return append(ctx.Events(), events.Event{
		Type:        events.EventTxExecuted,
		TxID:        tx.ID,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"type": string(tx.Type), "from": tx.From.Hex(), "to": tx.To.Hex()},
	}), nil
}

// Publish hands evs to the emitter in order.
func (e *Executor) Publish(evs []events.Event) {
	if e.emitter == nil {
		return
	}
	for _, ev := range evs {
		e.emitter.Emit(ev)
	}
}

// applyTx increments the nonce, moves the attached value to tx.To, then
// dispatches to the handler. Value is refused up front for handlers not
// registered as payable.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	handler, err := globalRegistry.lookup(tx.Type)
	if err != nil {
		return err
	}
	value := tx.AttachedValue()
	if value.Sign() > 0 && !handler.payable {
		return fmt.Errorf("%w: %s attached to %s", ErrNotPayable, value, tx.Type)
	}

	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From.Hex())
	}
	acc.Nonce++

	if value.Sign() > 0 {
		if tx.To == (common.Address{}) {
			return errors.New("value attached without a recipient")
		}
		if acc.Balance.Cmp(value) < 0 {
			return fmt.Errorf("insufficient balance for value: have %s need %s", acc.Balance, value)
		}
		acc.Balance.Sub(acc.Balance, value)
	}
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	if value.Sign() > 0 {
		to, err := e.state.GetAccount(tx.To)
		if err != nil {
			return err
		}
		to.Balance.Add(to.Balance, value)
		if err := e.state.SetAccount(to); err != nil {
			return err
		}
	}

	return handler.h(ctx, tx.Payload)
}
