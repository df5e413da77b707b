package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tolelom/artcade/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer           TxType = "transfer"
	TxUnwrap             TxType = "unwrap"
	TxTransferToken      TxType = "transfer_token"
	TxTransferCredential TxType = "transfer_credential"

	TxCreateGame             TxType = "create_game"
	TxRegisterPlayer         TxType = "register_player"
	TxSubmitScore            TxType = "submit_score"
	TxUpdateGameSettings     TxType = "update_game_settings"
	TxSetGamePaused          TxType = "set_game_paused"
	TxUpdateRegistrySettings TxType = "update_registry_settings"
	TxSetTicketAdjustment    TxType = "set_ticket_adjustment"
	TxSetRegistryPaused      TxType = "set_registry_paused"
	TxDispenseTickets        TxType = "dispense_tickets"
	TxTransferOwnership      TxType = "transfer_ownership"
)

// Transaction is the atomic unit of work on the chain.
// To names the instance (registry, game, token) the call is addressed to and
// receives Value before the handler runs.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   uint64          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      common.Address  `json:"from"`
	To        common.Address  `json:"to"`
	Nonce     uint64          `json:"nonce"`
	Value     *big.Int        `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature hexutil.Bytes   `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   uint64          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      common.Address  `json:"from"`
	To        common.Address  `json:"to"`
	Nonce     uint64          `json:"nonce"`
	Value     *big.Int        `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SigningHash returns the digest covered by the signature.
func (tx *Transaction) SigningHash() common.Hash {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		To:        tx.To,
		Nonce:     tx.Nonce,
		Value:     tx.Value,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return common.Hash{}
	}
	return crypto.HashBytes(data)
}

// Hash returns the hex form of SigningHash, used as the transaction ID.
func (tx *Transaction) Hash() string {
	return tx.SigningHash().Hex()
}

// AttachedValue returns Value, or zero when unset.
func (tx *Transaction) AttachedValue() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(tx.Value)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) error {
	digest := tx.SigningHash()
	sig, err := crypto.Sign(priv, digest)
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.ID = digest.Hex()
	return nil
}

// Verify checks that the signature recovers to From.
func (tx *Transaction) Verify() error {
	if tx.From == (common.Address{}) {
		return errors.New("missing from field")
	}
	if tx.Value != nil && tx.Value.Sign() < 0 {
		return errors.New("negative value")
	}
	signer, err := crypto.Recover(tx.SigningHash(), tx.Signature)
	if err != nil {
		return err
	}
	if signer != tx.From {
		return fmt.Errorf("signature verification failed: signer %s is not %s", signer.Hex(), tx.From.Hex())
	}
	return nil
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID uint64, typ TxType, from, to common.Address, nonce uint64, value *big.Int, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		To:        to,
		Nonce:     nonce,
		Value:     value,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native balance.
type TransferPayload struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// UnwrapPayload burns wrapped units of the wrapper addressed by tx.To and
// pays the sender the native amount.
type UnwrapPayload struct {
	Amount *big.Int `json:"amount"`
}

// TransferTokenPayload moves units of the token addressed by tx.To.
type TransferTokenPayload struct {
	ID     *big.Int       `json:"id"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// TransferCredentialPayload moves a credential of the contract at tx.To.
type TransferCredentialPayload struct {
	ID uint64         `json:"id"`
	To common.Address `json:"to"`
}

// CreateGamePayload creates a game through the registry at tx.To.
type CreateGamePayload struct {
	Name           string         `json:"name"`
	BaseURI        string         `json:"base_uri"`
	Signer         common.Address `json:"signer"`
	MaxScore       uint64         `json:"max_score"`
	FeeRecipient   common.Address `json:"fee_recipient"`
	CredentialInit hexutil.Bytes  `json:"credential_init"`
}

// RegisterPlayerPayload registers Player (tx.From when zero) with the game at tx.To.
type RegisterPlayerPayload struct {
	Player common.Address `json:"player"`
}

// SubmitScorePayload submits a signed score to the game at tx.To. The
// payment is the transaction Value.
type SubmitScorePayload struct {
	Player    common.Address `json:"player"`
	Score     uint64         `json:"score"`
	Nonce     *hexutil.Big   `json:"nonce"`
	Signature hexutil.Bytes  `json:"signature"`
}

// UpdateGameSettingsPayload replaces the settings of the game at tx.To.
type UpdateGameSettingsPayload struct {
	Settings GameSettings `json:"settings"`
}

// UpdateRegistrySettingsPayload replaces the settings of the registry at tx.To.
type UpdateRegistrySettingsPayload struct {
	Settings RegistrySettings `json:"settings"`
}

// SetPausedPayload toggles the pause flag of the instance at tx.To.
type SetPausedPayload struct {
	Paused bool `json:"paused"`
}

// SetTicketAdjustmentPayload sets a game's flat reward adjustment.
type SetTicketAdjustmentPayload struct {
	Game       common.Address `json:"game"`
	Adjustment uint64         `json:"adjustment"`
}

// DispenseTicketsPayload asks the registry at tx.To to mint tickets.
type DispenseTicketsPayload struct {
	Player common.Address `json:"player"`
	Amount uint64         `json:"amount"`
}

// TransferOwnershipPayload hands the instance at tx.To to NewOwner.
type TransferOwnershipPayload struct {
	NewOwner common.Address `json:"new_owner"`
}
