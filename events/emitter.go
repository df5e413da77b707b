package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit EventType = "block_commit"
	EventTxExecuted  EventType = "tx_executed"
	EventTxDropped   EventType = "tx_dropped"

	EventValueTransfer      EventType = "value_transfer"
	EventWrappedFallback    EventType = "wrapped_fallback"
	EventTokenMinted        EventType = "token_minted"
	EventTokenTransfer      EventType = "token_transfer"
	EventContractDeployed   EventType = "contract_deployed"
	EventCredentialMinted   EventType = "credential_minted"
	EventCredentialTransfer EventType = "credential_transfer"

	EventSettingsChanged         EventType = "settings_changed"
	EventPausedChanged           EventType = "paused_changed"
	EventOwnershipTransferred    EventType = "ownership_transferred"
	EventPlayerRegistered        EventType = "player_registered"
	EventHighScoreUpdated        EventType = "high_score_updated"
	EventScoreSettled            EventType = "score_settled"
	EventGameCreated             EventType = "game_created"
	EventTicketAdjustmentChanged EventType = "ticket_adjustment_changed"
	EventTicketsDispensed        EventType = "tickets_dispensed"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
	log      logrus.FieldLogger
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[EventType][]Handler),
		log:      logrus.WithField("module", "events"),
	}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously. A panicking
// subscriber is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.WithFields(logrus.Fields{"event": ev.Type, "panic": r}).Error("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
