package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
)

// Wallet holds a secp256k1 key and provides transaction-building helpers
// for one chain.
type Wallet struct {
	priv    crypto.PrivateKey
	chainID uint64
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey, chainID uint64) *Wallet {
	return &Wallet{priv: priv, chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key.
func Generate(chainID uint64) (*Wallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// Address returns the account address of the wallet key.
func (w *Wallet) Address() common.Address {
	return w.priv.Address()
}

// ChainID returns the chain the wallet signs for.
func (w *Wallet) ChainID() uint64 {
	return w.chainID
}

// NewTx creates a signed transaction addressed to `to`. nonce should match
// the account's current nonce.
func (w *Wallet) NewTx(typ core.TxType, to common.Address, nonce uint64, value *big.Int, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.Address(), to, nonce, value, payload)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(w.priv); err != nil {
		return nil, err
	}
	return tx, nil
}

// Transfer creates a signed native transfer.
func (w *Wallet) Transfer(to common.Address, amount *big.Int, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, to, nonce, nil, core.TransferPayload{To: to, Amount: amount})
}

// Unwrap burns wrapped units held in wrapper and returns the native amount.
func (w *Wallet) Unwrap(wrapper common.Address, amount *big.Int, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxUnwrap, wrapper, nonce, nil, core.UnwrapPayload{Amount: amount})
}

// TransferToken moves units of id of the token at tokenAddr.
func (w *Wallet) TransferToken(tokenAddr common.Address, id *big.Int, to common.Address, amount *big.Int, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransferToken, tokenAddr, nonce, nil, core.TransferTokenPayload{ID: id, To: to, Amount: amount})
}

// TransferCredential hands credential id of collection to `to`.
func (w *Wallet) TransferCredential(collection common.Address, id uint64, to common.Address, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransferCredential, collection, nonce, nil, core.TransferCredentialPayload{ID: id, To: to})
}

// CreateGame asks registry to create a game owned by the wallet.
func (w *Wallet) CreateGame(registry common.Address, p core.CreateGamePayload, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateGame, registry, nonce, nil, p)
}

// RegisterPlayer registers the wallet with game.
func (w *Wallet) RegisterPlayer(game common.Address, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRegisterPlayer, game, nonce, nil, core.RegisterPlayerPayload{Player: w.Address()})
}

// SubmitScore submits a signed score for the wallet, paying price.
func (w *Wallet) SubmitScore(game common.Address, score uint64, scoreNonce *big.Int, sig []byte, price *big.Int, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSubmitScore, game, nonce, price, core.SubmitScorePayload{
		Player:    w.Address(),
		Score:     score,
		Nonce:     (*hexutil.Big)(scoreNonce),
		Signature: sig,
	})
}

// UpdateGameSettings replaces the settings of a game the wallet owns.
func (w *Wallet) UpdateGameSettings(game common.Address, s core.GameSettings, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxUpdateGameSettings, game, nonce, nil, core.UpdateGameSettingsPayload{Settings: s})
}

// SetGamePaused toggles the pause flag of a game the wallet owns.
func (w *Wallet) SetGamePaused(game common.Address, paused bool, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetGamePaused, game, nonce, nil, core.SetPausedPayload{Paused: paused})
}

// UpdateRegistrySettings replaces the settings of a registry the wallet owns.
func (w *Wallet) UpdateRegistrySettings(registry common.Address, s core.RegistrySettings, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxUpdateRegistrySettings, registry, nonce, nil, core.UpdateRegistrySettingsPayload{Settings: s})
}

// SetTicketAdjustment sets the reward adjustment of game.
func (w *Wallet) SetTicketAdjustment(registry, game common.Address, adjustment, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetTicketAdjustment, registry, nonce, nil, core.SetTicketAdjustmentPayload{Game: game, Adjustment: adjustment})
}

// SetRegistryPaused toggles the pause flag of a registry the wallet owns.
func (w *Wallet) SetRegistryPaused(registry common.Address, paused bool, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetRegistryPaused, registry, nonce, nil, core.SetPausedPayload{Paused: paused})
}

// DispenseTickets calls the registry dispense gate directly.
func (w *Wallet) DispenseTickets(registry, player common.Address, amount, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxDispenseTickets, registry, nonce, nil, core.DispenseTicketsPayload{Player: player, Amount: amount})
}

// TransferOwnership hands a registry or game to newOwner.
func (w *Wallet) TransferOwnership(instance, newOwner common.Address, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransferOwnership, instance, nonce, nil, core.TransferOwnershipPayload{NewOwner: newOwner})
}

// SignScore produces the attestation a game's signer hands to a player:
// a typed-data signature over (player, score, nonce) bound to the game
// named gameName at game on the wallet's chain.
func (w *Wallet) SignScore(game common.Address, gameName string, player common.Address, score uint64, scoreNonce *big.Int) ([]byte, error) {
	d := crypto.Domain{
		Name:              gameName,
		Version:           "1",
		ChainID:           w.chainID,
		VerifyingContract: game,
	}
	return crypto.Sign(w.priv, d.ScoreDigest(player, score, scoreNonce))
}
