// Package indexer maintains secondary indexes over committed transactions so
// clients can list games and credentials without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/storage"
)

const (
	prefixCreatorGames     = "idx:creator:game:"
	prefixPlayerGames      = "idx:player:game:"
	prefixOwnerCredentials = "idx:owner:cred:"
)

var log = logrus.WithField("module", "indexer")

// CredentialRef names one credential of one collection.
type CredentialRef struct {
	Contract common.Address `json:"contract"`
	ID       uint64         `json:"id"`
}

func (r CredentialRef) key() string {
	return r.Contract.Hex() + ":" + strconv.FormatUint(r.ID, 10)
}

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventGameCreated, idx.onGameCreated)
	emitter.Subscribe(events.EventPlayerRegistered, idx.onPlayerRegistered)
	emitter.Subscribe(events.EventCredentialMinted, idx.onCredentialMinted)
	emitter.Subscribe(events.EventCredentialTransfer, idx.onCredentialTransfer)
	return idx
}

// GetGamesByCreator returns the games created by creator, oldest first.
func (idx *Indexer) GetGamesByCreator(creator common.Address) ([]common.Address, error) {
	return idx.getAddrs(prefixCreatorGames + creator.Hex())
}

// GetGamesByPlayer returns the games player registered with.
func (idx *Indexer) GetGamesByPlayer(player common.Address) ([]common.Address, error) {
	return idx.getAddrs(prefixPlayerGames + player.Hex())
}

// GetCredentialsByOwner returns the credentials currently held by owner.
func (idx *Indexer) GetCredentialsByOwner(owner common.Address) ([]CredentialRef, error) {
	var refs []CredentialRef
	if err := idx.getJSON(prefixOwnerCredentials+owner.Hex(), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// ---- event handlers ----

func (idx *Indexer) onGameCreated(ev events.Event) {
	creator, _ := ev.Data["creator"].(string)
	game, _ := ev.Data["game"].(string)
	if creator == "" || game == "" {
		return
	}
	idx.logErr(ev, idx.addAddr(prefixCreatorGames+creator, game))
}

func (idx *Indexer) onPlayerRegistered(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	game, _ := ev.Data["game"].(string)
	if player == "" || game == "" {
		return
	}
	idx.logErr(ev, idx.addAddr(prefixPlayerGames+player, game))
}

func (idx *Indexer) onCredentialMinted(ev events.Event) {
	ref, ok := credentialRef(ev)
	owner, _ := ev.Data["owner"].(string)
	if !ok || owner == "" {
		return
	}
	idx.logErr(ev, idx.addCredential(owner, ref))
}

func (idx *Indexer) onCredentialTransfer(ev events.Event) {
	ref, ok := credentialRef(ev)
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	if !ok || from == "" || to == "" {
		return
	}
	if err := idx.removeCredential(from, ref); err != nil {
		idx.logErr(ev, err)
		return
	}
	idx.logErr(ev, idx.addCredential(to, ref))
}

func credentialRef(ev events.Event) (CredentialRef, bool) {
	contract, _ := ev.Data["contract"].(string)
	if contract == "" {
		return CredentialRef{}, false
	}
	var id uint64
	switch v := ev.Data["id"].(type) {
	case uint64:
		id = v
	case float64:
		id = uint64(v)
	default:
		return CredentialRef{}, false
	}
	return CredentialRef{Contract: common.HexToAddress(contract), ID: id}, true
}

func (idx *Indexer) logErr(ev events.Event, err error) {
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"event": ev.Type, "tx": ev.TxID}).Error("index update failed")
	}
}

// ---- list helpers ----

func (idx *Indexer) getJSON(key string, v any) error {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil // empty list
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("indexer unmarshal: %w", err)
	}
	return nil
}

func (idx *Indexer) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) getAddrs(key string) ([]common.Address, error) {
	var addrs []common.Address
	if err := idx.getJSON(key, &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

func (idx *Indexer) addAddr(key, value string) error {
	addrs, err := idx.getAddrs(key)
	if err != nil {
		return err
	}
	addr := common.HexToAddress(value)
	if slices.Contains(addrs, addr) {
		return nil
	}
	return idx.setJSON(key, append(addrs, addr))
}

func (idx *Indexer) addCredential(owner string, ref CredentialRef) error {
	key := prefixOwnerCredentials + owner
	var refs []CredentialRef
	if err := idx.getJSON(key, &refs); err != nil {
		return err
	}
	if slices.ContainsFunc(refs, func(r CredentialRef) bool { return r.key() == ref.key() }) {
		return nil
	}
	return idx.setJSON(key, append(refs, ref))
}

func (idx *Indexer) removeCredential(owner string, ref CredentialRef) error {
	key := prefixOwnerCredentials + owner
	var refs []CredentialRef
	if err := idx.getJSON(key, &refs); err != nil {
		return err
	}
	filtered := refs[:0]
	for _, r := range refs {
		if r.key() != ref.key() {
			filtered = append(filtered, r)
		}
	}
	return idx.setJSON(key, filtered)
}
