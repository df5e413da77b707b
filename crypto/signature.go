package crypto

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an [R || S || V] signature.
const SignatureLength = 65

// ErrBadSignature is returned for signatures that cannot yield a signer.
var ErrBadSignature = errors.New("malformed signature")

// Sign signs a 32-byte digest. V is returned as 0 or 1.
func Sign(priv PrivateKey, digest common.Hash) ([]byte, error) {
	if priv.key == nil {
		return nil, errors.New("sign: empty private key")
	}
	return ethcrypto.Sign(digest.Bytes(), priv.key)
}

// Recover returns the address that produced sig over digest. Both the raw
// recovery id (0/1) and the legacy 27/28 form are accepted; high-S
// signatures are rejected so a signature has exactly one valid encoding.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	norm := make([]byte, SignatureLength)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	r := new(big.Int).SetBytes(norm[:32])
	s := new(big.Int).SetBytes(norm[32:64])
	if !ethcrypto.ValidateSignatureValues(norm[64], r, s, true) {
		return common.Address{}, fmt.Errorf("%w: invalid r, s or v", ErrBadSignature)
	}
	pub, err := ethcrypto.SigToPub(digest.Bytes(), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
