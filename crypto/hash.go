package crypto

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Hash returns the Keccak-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	return hex.EncodeToString(ethcrypto.Keccak256(data))
}

// HashBytes returns the Keccak-256 hash of the concatenated inputs.
func HashBytes(data ...[]byte) common.Hash {
	return ethcrypto.Keccak256Hash(data...)
}
