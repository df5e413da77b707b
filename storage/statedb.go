package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount    = registerPrefix("acct:")
	prefixRegistry   = registerPrefix("reg:")
	prefixGameRecord = registerPrefix("grec:")
	prefixGame       = registerPrefix("game:")
	prefixPlayer     = registerPrefix("plyr:")
	prefixNonce      = registerPrefix("nonce:")
	prefixCredColl   = registerPrefix("ccol:")
	prefixCredential = registerPrefix("cred:")
	prefixToken      = registerPrefix("tok:")
	prefixTokenBal   = registerPrefix("tbal:")
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation. It is safe
// for concurrent readers alongside the executing writer.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, key)
	s.deleted[key] = true
}

func getJSON[T any](s *StateDB, key string) (*T, error) {
	data, err := s.get(key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

func addrKey(prefix string, addrs ...common.Address) string {
	var b bytes.Buffer
	b.WriteString(prefix)
	for i, a := range addrs {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(a.Hex())
	}
	return b.String()
}

func bigKey(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

// ---- Account ----

func (s *StateDB) GetAccount(addr common.Address) (*core.Account, error) {
	acc, err := getJSON[core.Account](s, addrKey(prefixAccount, addr))
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: addr, Balance: new(big.Int)}, nil
	}
	if err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = new(big.Int)
	}
	return acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(addrKey(prefixAccount, acc.Address), acc)
}

// ---- Registry ----

func (s *StateDB) GetRegistry(addr common.Address) (*core.Registry, error) {
	return getJSON[core.Registry](s, addrKey(prefixRegistry, addr))
}

func (s *StateDB) SetRegistry(r *core.Registry) error {
	return s.setJSON(addrKey(prefixRegistry, r.Address), r)
}

// GetGameRecord returns a zero record (Created=false) for unknown games.
func (s *StateDB) GetGameRecord(registry, game common.Address) (*core.GameRecord, error) {
	rec, err := getJSON[core.GameRecord](s, addrKey(prefixGameRecord, registry, game))
	if errors.Is(err, core.ErrNotFound) {
		return &core.GameRecord{Registry: registry, Game: game}, nil
	}
	return rec, err
}

func (s *StateDB) SetGameRecord(rec *core.GameRecord) error {
	return s.setJSON(addrKey(prefixGameRecord, rec.Registry, rec.Game), rec)
}

// ---- Games ----

func (s *StateDB) GetGame(addr common.Address) (*core.GameInstance, error) {
	return getJSON[core.GameInstance](s, addrKey(prefixGame, addr))
}

func (s *StateDB) SetGame(g *core.GameInstance) error {
	return s.setJSON(addrKey(prefixGame, g.Address), g)
}

// GetPlayer returns a zero player state for players the game has not seen.
func (s *StateDB) GetPlayer(game, player common.Address) (*core.PlayerState, error) {
	p, err := getJSON[core.PlayerState](s, addrKey(prefixPlayer, game, player))
	if errors.Is(err, core.ErrNotFound) {
		return &core.PlayerState{Game: game, Player: player}, nil
	}
	return p, err
}

func (s *StateDB) SetPlayer(p *core.PlayerState) error {
	return s.setJSON(addrKey(prefixPlayer, p.Game, p.Player), p)
}

func (s *StateDB) IsNonceUsed(game, player common.Address, nonce *big.Int) (bool, error) {
	_, err := s.get(addrKey(prefixNonce, game, player) + ":" + bigKey(nonce))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) MarkNonceUsed(game, player common.Address, nonce *big.Int) error {
	s.set(addrKey(prefixNonce, game, player)+":"+bigKey(nonce), []byte{1})
	return nil
}

// ---- Credentials ----

func (s *StateDB) GetCredentialContract(addr common.Address) (*core.CredentialContract, error) {
	return getJSON[core.CredentialContract](s, addrKey(prefixCredColl, addr))
}

func (s *StateDB) SetCredentialContract(c *core.CredentialContract) error {
	return s.setJSON(addrKey(prefixCredColl, c.Address), c)
}

func (s *StateDB) GetCredential(contract common.Address, id uint64) (*core.Credential, error) {
	return getJSON[core.Credential](s, fmt.Sprintf("%s:%d", addrKey(prefixCredential, contract), id))
}

func (s *StateDB) SetCredential(c *core.Credential) error {
	return s.setJSON(fmt.Sprintf("%s:%d", addrKey(prefixCredential, c.Contract), c.ID), c)
}

// ---- Tokens ----

func (s *StateDB) GetTokenContract(addr common.Address) (*core.TokenContract, error) {
	return getJSON[core.TokenContract](s, addrKey(prefixToken, addr))
}

func (s *StateDB) SetTokenContract(t *core.TokenContract) error {
	return s.setJSON(addrKey(prefixToken, t.Address), t)
}

func (s *StateDB) GetTokenBalance(token common.Address, id *big.Int, owner common.Address) (*big.Int, error) {
	data, err := s.get(addrKey(prefixTokenBal, token, owner) + ":" + bigKey(id))
	if errors.Is(err, core.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func (s *StateDB) SetTokenBalance(token common.Address, id *big.Int, owner common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative token balance for %s", owner.Hex())
	}
	key := addrKey(prefixTokenBal, token, owner) + ":" + bigKey(id)
	if amount.Sign() == 0 {
		s.del(key)
		return nil
	}
	s.set(key, amount.Bytes())
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		snap.dirty[k] = bytes.Clone(v)
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards every snapshot taken after it.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		dirty[k] = bytes.Clone(v)
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state:
// persisted entries under the known prefixes merged with the write buffer,
// sorted by key and length-prefix encoded.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = bytes.Clone(it.Value())
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB and then
// clears it.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
