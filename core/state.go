package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountKind tells the value-transfer facility how an account receives
// native payments. Plain externally-owned accounts have an empty kind.
type AccountKind string

const (
	KindExternal   AccountKind = ""
	KindRegistry   AccountKind = "registry"
	KindGame       AccountKind = "game"
	KindCredential AccountKind = "credential"
	KindToken      AccountKind = "token"
)

// Account holds a participant's native balance and replay-protection nonce.
type Account struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
	Nonce   uint64         `json:"nonce"`
	Kind    AccountKind    `json:"kind,omitempty"`
}

// GameSettings is owned by a game instance and replaced only by its owner.
type GameSettings struct {
	Name         string         `json:"name"`
	BaseURI      string         `json:"base_uri"`
	Signer       common.Address `json:"signer"`
	MaxScore     uint64         `json:"max_score"`
	FeeRecipient common.Address `json:"fee_recipient"`
}

// GameInstance is the state of one cloned game.
type GameInstance struct {
	Address     common.Address `json:"address"`
	Template    common.Address `json:"template"`
	Initialized bool           `json:"initialized"`
	Owner       common.Address `json:"owner"`
	Registry    common.Address `json:"registry"`
	Credential  common.Address `json:"credential"`
	Paused      bool           `json:"paused"`
	Settings    GameSettings   `json:"settings"`
}

// PlayerState is kept per game and per player. CredentialID 0 means the
// player has not registered.
type PlayerState struct {
	Game         common.Address `json:"game"`
	Player       common.Address `json:"player"`
	HighScore    uint64         `json:"high_score"`
	CredentialID uint64         `json:"credential_id"`
}

// CredentialDeployment describes how player-credential contracts are deployed.
type CredentialDeployment struct {
	Kind    string `json:"kind"`
	Version uint64 `json:"version"`
}

// RegistrySettings holds the global economic parameters of a registry.
type RegistrySettings struct {
	PricePerGame      *big.Int             `json:"price_per_game"`
	MaxTicketsPerGame uint64               `json:"max_tickets_per_game"`
	TicketToken       common.Address       `json:"ticket_token"`
	TicketID          *big.Int             `json:"ticket_id"`
	ProtocolRecipient common.Address       `json:"protocol_recipient"`
	ProtocolFeeBps    uint64               `json:"protocol_fee_bps"`
	NativeWrapper     common.Address       `json:"native_wrapper"`
	GameTemplate      common.Address       `json:"game_template"`
	Credential        CredentialDeployment `json:"credential"`
}

// Copy returns a deep copy so callers can hold a snapshot of the settings.
func (s RegistrySettings) Copy() RegistrySettings {
	cp := s
	if s.PricePerGame != nil {
		cp.PricePerGame = new(big.Int).Set(s.PricePerGame)
	}
	if s.TicketID != nil {
		cp.TicketID = new(big.Int).Set(s.TicketID)
	}
	return cp
}

// Registry is the state of a game registry.
type Registry struct {
	Address  common.Address   `json:"address"`
	Owner    common.Address   `json:"owner"`
	Paused   bool             `json:"paused"`
	Settings RegistrySettings `json:"settings"`
}

// GameRecord is the registry's view of a game it created.
type GameRecord struct {
	Registry         common.Address `json:"registry"`
	Game             common.Address `json:"game"`
	Creator          common.Address `json:"creator"`
	Created          bool           `json:"created"`
	RewardAdjustment uint64         `json:"reward_adjustment"`
}

// CredentialContract is a deployed player-credential collection.
type CredentialContract struct {
	Address     common.Address   `json:"address"`
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Admins      []common.Address `json:"admins"`
	TotalSupply uint64           `json:"total_supply"`
}

// Credential is one issued credential token.
type Credential struct {
	Contract common.Address `json:"contract"`
	ID       uint64         `json:"id"`
	Owner    common.Address `json:"owner"`
	URI      string         `json:"uri"`
}

// TokenContract is a multi-token ledger. Wrapper contracts back unit id 0
// with native balance held by the contract account.
type TokenContract struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Minter  common.Address `json:"minter"`
	Wrapper bool           `json:"wrapper"`
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(addr common.Address) (*Account, error)
	SetAccount(account *Account) error

	// Registries and their game records
	GetRegistry(addr common.Address) (*Registry, error)
	SetRegistry(r *Registry) error
	GetGameRecord(registry, game common.Address) (*GameRecord, error)
	SetGameRecord(rec *GameRecord) error

	// Game instances and players
	GetGame(addr common.Address) (*GameInstance, error)
	SetGame(g *GameInstance) error
	GetPlayer(game, player common.Address) (*PlayerState, error)
	SetPlayer(p *PlayerState) error
	IsNonceUsed(game, player common.Address, nonce *big.Int) (bool, error)
	MarkNonceUsed(game, player common.Address, nonce *big.Int) error

	// Credentials
	GetCredentialContract(addr common.Address) (*CredentialContract, error)
	SetCredentialContract(c *CredentialContract) error
	GetCredential(contract common.Address, id uint64) (*Credential, error)
	SetCredential(c *Credential) error

	// Tokens
	GetTokenContract(addr common.Address) (*TokenContract, error)
	SetTokenContract(t *TokenContract) error
	GetTokenBalance(token common.Address, id *big.Int, owner common.Address) (*big.Int, error)
	SetTokenBalance(token common.Address, id *big.Int, owner common.Address, amount *big.Int) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
