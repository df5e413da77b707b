package vm

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/artcade/core"
)

// Handler is the function signature every transaction module must implement.
type Handler func(ctx *Context, payload json.RawMessage) error

type entry struct {
	h       Handler
	payable bool
}

// Registry maps TxTypes to Handlers. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxType]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.TxType]entry)}
}

// Register associates typ with a non-payable handler h. Panics on duplicate
// registration.
func (r *Registry) Register(typ core.TxType, h Handler) {
	r.add(typ, entry{h: h})
}

// RegisterPayable associates typ with h and lets its transactions carry
// value.
func (r *Registry) RegisterPayable(typ core.TxType, h Handler) {
	r.add(typ, entry{h: h, payable: true})
}

func (r *Registry) add(typ core.TxType, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("vm: handler already registered for TxType %q", typ))
	}
	r.handlers[typ] = e
}

func (r *Registry) lookup(typ core.TxType) (entry, error) {
	r.mu.RLock()
	e, ok := r.handlers[typ]
	r.mu.RUnlock()
	if !ok {
		return entry{}, fmt.Errorf("vm: no handler registered for TxType %q", typ)
	}
	return e, nil
}

// Execute dispatches payload to the handler registered for typ.
func (r *Registry) Execute(typ core.TxType, ctx *Context, payload json.RawMessage) error {
	e, err := r.lookup(typ)
	if err != nil {
		return err
	}
	return e.h(ctx, payload)
}

// Types lists the registered tx types in sorted order.
func (r *Registry) Types() []core.TxType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.TxType, 0, len(r.handlers))
	for typ := range r.handlers {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// globalRegistry is the package-level singleton that modules register into.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry.
// Module init() functions call this to self-register.
func Register(typ core.TxType, h Handler) {
	globalRegistry.Register(typ, h)
}

// RegisterPayable adds a payable handler to the global registry.
func RegisterPayable(typ core.TxType, h Handler) {
	globalRegistry.RegisterPayable(typ, h)
}

// RegisteredTypes lists every tx type known to the global registry.
func RegisteredTypes() []core.TxType {
	return globalRegistry.Types()
}
