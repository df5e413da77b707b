package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	require := require.New(t)

	priv, err := GenerateKey()
	require.NoError(err)

	back, err := PrivKeyFromHex(priv.Hex())
	require.NoError(err)
	require.Equal(priv.Address(), back.Address())

	_, err = PrivKeyFromHex("0x1234")
	require.Error(err)
}

func TestSignRecover(t *testing.T) {
	require := require.New(t)

	priv, err := GenerateKey()
	require.NoError(err)
	digest := HashBytes([]byte("hello artcade"))

	sig, err := Sign(priv, digest)
	require.NoError(err)

	got, err := Recover(digest, sig)
	require.NoError(err)
	require.Equal(priv.Address(), got)

	// Legacy 27/28 recovery ids are accepted.
	legacy := append([]byte(nil), sig...)
	legacy[64] += 27
	got, err = Recover(digest, legacy)
	require.NoError(err)
	require.Equal(priv.Address(), got)

	// A different digest recovers someone else.
	other, err := Recover(HashBytes([]byte("tampered")), sig)
	if err == nil {
		require.NotEqual(priv.Address(), other)
	}

	_, err = Recover(digest, sig[:64])
	require.ErrorIs(err, ErrBadSignature)
}

func TestRecoverRejectsHighS(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	digest := HashBytes([]byte("malleable"))
	sig, err := Sign(priv, digest)
	require.NoError(t, err)

	// s' = n - s with flipped recovery id is the malleable twin.
	n, _ := new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	s := new(big.Int).SetBytes(sig[32:64])
	flipped := make([]byte, 65)
	copy(flipped, sig[:32])
	copy(flipped[32:64], common.LeftPadBytes(new(big.Int).Sub(n, s).Bytes(), 32))
	flipped[64] = sig[64] ^ 1

	_, err = Recover(digest, flipped)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestScoreDigestIsDomainBound(t *testing.T) {
	player := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	nonce := big.NewInt(1)
	base := Domain{Name: "Pong", Version: "1", ChainID: 7, VerifyingContract: common.HexToAddress("0x01")}

	d := base.ScoreDigest(player, 5000, nonce)
	require.Equal(t, d, base.ScoreDigest(player, 5000, big.NewInt(1)))

	otherChain := base
	otherChain.ChainID = 8
	require.NotEqual(t, d, otherChain.ScoreDigest(player, 5000, nonce))

	otherGame := base
	otherGame.VerifyingContract = common.HexToAddress("0x02")
	require.NotEqual(t, d, otherGame.ScoreDigest(player, 5000, nonce))

	require.NotEqual(t, d, base.ScoreDigest(player, 5001, nonce))
	require.NotEqual(t, d, base.ScoreDigest(player, 5000, big.NewInt(2)))
}

func TestCloneAddressDeterministic(t *testing.T) {
	deployer := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	template := common.HexToAddress("0x0000000000000000000000000000000000000b01")
	salt := HashBytes([]byte("pong"), common.HexToAddress("0xc0").Bytes())

	a := CloneAddress(deployer, template, salt)
	require.Equal(t, a, CloneAddress(deployer, template, salt))
	require.NotEqual(t, a, CloneAddress(deployer, common.HexToAddress("0xb02"), salt))
	require.NotEqual(t, a, BlueprintAddress(deployer, "credential", 1, salt))
	require.NotEqual(t, BlueprintAddress(deployer, "credential", 1, salt), BlueprintAddress(deployer, "credential", 2, salt))
}
