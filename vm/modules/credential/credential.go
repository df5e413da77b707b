// Package credential implements player-credential collections: one token
// per registered player, minted only by admins of the collection.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/vm/modules/deploy"
)

// Blueprint identity registered with the deployment facility.
const (
	Kind    = "PlayerCredential"
	Version = uint64(1)
)

var (
	ErrNotAdmin          = errors.New("caller lacks credential admin role")
	ErrUnknownCredential = errors.New("unknown credential")
)

// InitPayload is the encoded init payload of a credential collection.
type InitPayload struct {
	Name   string           `json:"name"`
	Symbol string           `json:"symbol"`
	Admins []common.Address `json:"admins"`
}

// Encode returns the canonical payload bytes.
func (p InitPayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

func init() {
	deploy.RegisterBlueprint(Kind, Version, initCollection)
}

func initCollection(state core.State, addr common.Address, payload []byte) error {
	var p InitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode credential init payload: %w", err)
	}
	acc, err := state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Kind = core.KindCredential
	if err := state.SetAccount(acc); err != nil {
		return err
	}
	return state.SetCredentialContract(&core.CredentialContract{
		Address: addr,
		Name:    p.Name,
		Symbol:  p.Symbol,
		Admins:  p.Admins,
	})
}

// Store is a credential collection bound to an execution context.
type Store struct {
	ctx  *vm.Context
	addr common.Address
}

// At binds the collection at addr to ctx.
func At(ctx *vm.Context, addr common.Address) *Store {
	return &Store{ctx: ctx, addr: addr}
}

func (s *Store) contract() (*core.CredentialContract, error) {
	c, err := s.ctx.State.GetCredentialContract(s.addr)
	if err != nil {
		return nil, fmt.Errorf("credential contract %s: %w", s.addr.Hex(), err)
	}
	return c, nil
}

// Mint issues the next sequential id (starting at 1) to `to`.
func (s *Store) Mint(caller, to common.Address, uri string) (uint64, error) {
	c, err := s.contract()
	if err != nil {
		return 0, err
	}
	if !slices.Contains(c.Admins, caller) {
		return 0, fmt.Errorf("%w: %s", ErrNotAdmin, caller.Hex())
	}
	c.TotalSupply++
	id := c.TotalSupply
	if err := s.ctx.State.SetCredentialContract(c); err != nil {
		return 0, err
	}
	if err := s.ctx.State.SetCredential(&core.Credential{Contract: s.addr, ID: id, Owner: to, URI: uri}); err != nil {
		return 0, err
	}
	s.ctx.Emit(events.EventCredentialMinted, map[string]any{
		"contract": s.addr.Hex(),
		"id":       id,
		"owner":    to.Hex(),
		"uri":      uri,
	})
	return id, nil
}

// OwnerOf returns the current holder of id.
func (s *Store) OwnerOf(id uint64) (common.Address, error) {
	cred, err := s.ctx.State.GetCredential(s.addr, id)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w %d: %v", ErrUnknownCredential, id, err)
	}
	return cred.Owner, nil
}

// TokenURI returns the metadata URI of id.
func (s *Store) TokenURI(id uint64) (string, error) {
	cred, err := s.ctx.State.GetCredential(s.addr, id)
	if err != nil {
		return "", fmt.Errorf("%w %d: %v", ErrUnknownCredential, id, err)
	}
	return cred.URI, nil
}

// TotalSupply returns the number of credentials issued.
func (s *Store) TotalSupply() (uint64, error) {
	c, err := s.contract()
	if err != nil {
		return 0, err
	}
	return c.TotalSupply, nil
}

// HasAdminRole reports whether account may mint.
func (s *Store) HasAdminRole(account common.Address) (bool, error) {
	c, err := s.contract()
	if err != nil {
		return false, err
	}
	return slices.Contains(c.Admins, account), nil
}
