package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	domainTypeHash = HashBytes([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	scoreTypeHash  = HashBytes([]byte("Score(address player,uint256 score,uint256 nonce)"))
)

// Domain binds a typed-data signature to one verifying instance on one chain.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

// Separator returns the domain separator hash.
func (d Domain) Separator() common.Hash {
	return HashBytes(
		domainTypeHash.Bytes(),
		HashBytes([]byte(d.Name)).Bytes(),
		HashBytes([]byte(d.Version)).Bytes(),
		word(new(big.Int).SetUint64(d.ChainID)),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

// TypedDigest returns keccak256(0x19 0x01 || separator || structHash).
func (d Domain) TypedDigest(structHash common.Hash) common.Hash {
	sep := d.Separator()
	return HashBytes([]byte{0x19, 0x01}, sep.Bytes(), structHash.Bytes())
}

// ScoreHash is the struct hash of Score(player, score, nonce).
func ScoreHash(player common.Address, score uint64, nonce *big.Int) common.Hash {
	return HashBytes(
		scoreTypeHash.Bytes(),
		common.LeftPadBytes(player.Bytes(), 32),
		word(new(big.Int).SetUint64(score)),
		word(nonce),
	)
}

// ScoreDigest is the digest an authorised signer signs for a score.
func (d Domain) ScoreDigest(player common.Address, score uint64, nonce *big.Int) common.Hash {
	return d.TypedDigest(ScoreHash(player, score, nonce))
}

func word(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return math.PaddedBigBytes(n, 32)
}
