package economy

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
)

// ErrRefused is returned by receive hooks of accounts that do not accept
// native payments.
var ErrRefused = errors.New("recipient refuses native payment")

// ErrNoWrapper is returned when a refused payment has no usable wrapper.
var ErrNoWrapper = errors.New("no native wrapper configured")

// WrappedUnitID is the unit id wrapper contracts credit for native deposits.
var WrappedUnitID = new(big.Int)

// ReceiveHook runs before native value reaches an account of a given kind.
// Returning an error refuses the payment.
type ReceiveHook func(ctx *vm.Context, from, to common.Address, amount *big.Int) error

var (
	hooksMu sync.RWMutex
	hooks   = map[core.AccountKind]ReceiveHook{}
)

func init() {
	refuse := func(*vm.Context, common.Address, common.Address, *big.Int) error { return ErrRefused }
	RegisterReceiver(core.KindRegistry, refuse)
	RegisterReceiver(core.KindGame, refuse)
	RegisterReceiver(core.KindCredential, refuse)
}

// RegisterReceiver installs the receive hook for kind, replacing any
// previous one.
func RegisterReceiver(kind core.AccountKind, h ReceiveHook) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks[kind] = h
}

func receiver(kind core.AccountKind) (ReceiveHook, bool) {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	h, ok := hooks[kind]
	return h, ok
}

// Pay sends amount of native value from one account to another. When the
// recipient refuses native value the amount is deposited into wrapper and
// credited to the recipient as wrapped units, so a refusing recipient never
// fails the surrounding operation.
func Pay(ctx *vm.Context, from, to common.Address, amount *big.Int, wrapper common.Address) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := ctx.State.GetAccount(to)
	if err != nil {
		return err
	}
	if hook, ok := receiver(acc.Kind); ok {
		if refusal := hook(ctx, from, to, amount); refusal != nil {
			return payWrapped(ctx, from, to, amount, wrapper, refusal)
		}
	}
	if err := vm.MoveNative(ctx.State, from, to, amount); err != nil {
		return err
	}
	ctx.Emit(events.EventValueTransfer, map[string]any{
		"from":   from.Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
	return nil
}

func payWrapped(ctx *vm.Context, from, to common.Address, amount *big.Int, wrapper common.Address, refusal error) error {
	tc, err := ctx.State.GetTokenContract(wrapper)
	if errors.Is(err, core.ErrNotFound) || (err == nil && !tc.Wrapper) {
		return fmt.Errorf("%w: paying %s (%v)", ErrNoWrapper, to.Hex(), refusal)
	}
	if err != nil {
		return err
	}
	if err := vm.MoveNative(ctx.State, from, wrapper, amount); err != nil {
		return err
	}
	bal, err := ctx.State.GetTokenBalance(wrapper, WrappedUnitID, to)
	if err != nil {
		return err
	}
	if err := ctx.State.SetTokenBalance(wrapper, WrappedUnitID, to, bal.Add(bal, amount)); err != nil {
		return err
	}
	ctx.Emit(events.EventWrappedFallback, map[string]any{
		"from":    from.Hex(),
		"to":      to.Hex(),
		"wrapper": wrapper.Hex(),
		"amount":  amount.String(),
		"reason":  refusal.Error(),
	})
	return nil
}
