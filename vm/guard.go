package vm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrReentrantCall is returned when an instance is entered while one of its
// mutating entry points is already running.
var ErrReentrantCall = errors.New("reentrant call")

// Guard holds one exclusive lock per instance address. Entering a held
// instance fails immediately instead of waiting.
type Guard struct {
	mu   sync.Mutex
	held map[common.Address]bool
}

// NewGuard returns a Guard with no held instances.
func NewGuard() *Guard {
	return &Guard{held: make(map[common.Address]bool)}
}

// Enter locks addr and returns the matching release func.
func (g *Guard) Enter(addr common.Address) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[addr] {
		return nil, fmt.Errorf("%w into %s", ErrReentrantCall, addr.Hex())
	}
	g.held[addr] = true
	return func() {
		g.mu.Lock()
		delete(g.held, addr)
		g.mu.Unlock()
	}, nil
}

// Held reports whether addr is currently locked.
func (g *Guard) Held(addr common.Address) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[addr]
}
