package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (PrivateKey, error) {
	k, err := ethcrypto.GenerateKey()
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{key: k}, nil
}

// IsZero reports whether priv holds no key.
func (priv PrivateKey) IsZero() bool { return priv.key == nil }

// Address returns the 20-byte account address controlled by the key.
func (priv PrivateKey) Address() common.Address {
	return ethcrypto.PubkeyToAddress(priv.key.PublicKey)
}

// Bytes returns the raw 32-byte scalar.
func (priv PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(priv.key)
}

// Hex returns the hex-encoded private key without 0x prefix.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv.Bytes())
}

// PrivKeyFromBytes decodes a raw 32-byte secp256k1 scalar.
func PrivKeyFromBytes(b []byte) (PrivateKey, error) {
	k, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("invalid private key: %w", err)
	}
	return PrivateKey{key: k}, nil
}

// PrivKeyFromHex decodes a hex-encoded private key, with or without 0x.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b := common.FromHex(s)
	if len(b) != 32 {
		return PrivateKey{}, fmt.Errorf("privkey must be 32 bytes, got %d", len(b))
	}
	return PrivKeyFromBytes(b)
}

// AddressFromHex parses a 0x-prefixed or bare hex address.
func AddressFromHex(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
