package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tolelom/artcade/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height    int64          `json:"height"`
	PrevHash  string         `json:"prev_hash"`
	StateRoot string         `json:"state_root"` // hash of state after executing this block
	TxRoot    string         `json:"tx_root"`    // hash of all transaction IDs
	Timestamp int64          `json:"timestamp"`
	Proposer  common.Address `json:"proposer"`
}

// Block is a batch of transactions sealed by the sequencer.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    hexutil.Bytes  `json:"signature"`
}

// ComputeHash returns the Keccak hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Seal sets Hash and signs it with the proposer key.
func (b *Block) Seal(priv crypto.PrivateKey) error {
	b.Hash = b.ComputeHash()
	sig, err := crypto.Sign(priv, common.HexToHash(b.Hash))
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

// Verify checks the hash and that the signature was made by the header's
// proposer.
func (b *Block) Verify() error {
	if b.Hash != b.ComputeHash() {
		return fmt.Errorf("block hash mismatch at height %d", b.Header.Height)
	}
	signer, err := crypto.Recover(common.HexToHash(b.Hash), b.Signature)
	if err != nil {
		return err
	}
	if signer != b.Header.Proposer {
		return fmt.Errorf("block signed by %s, proposer is %s", signer.Hex(), b.Header.Proposer.Hex())
	}
	return nil
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, []byte(tx.ID)...)
	}
	return crypto.Hash(ids)
}

// NewBlock creates an unsigned block with the given parameters.
func NewBlock(height int64, prevHash string, proposer common.Address, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
