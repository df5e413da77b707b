package wallet_test

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/wallet"
)

func TestKeystoreRoundTrip(t *testing.T) {
	r := require.New(t)
	w, err := wallet.Generate(1)
	r.NoError(err)
	path := filepath.Join(t.TempDir(), "node.key")

	r.NoError(wallet.SaveKey(path, "hunter2", w.PrivKey()))
	info, err := os.Stat(path)
	r.NoError(err)
	r.Equal(os.FileMode(0600), info.Mode().Perm())

	priv, err := wallet.LoadKey(path, "hunter2")
	r.NoError(err)
	r.Equal(w.Address(), priv.Address())

	_, err = wallet.LoadKey(path, "wrong")
	r.ErrorIs(err, wallet.ErrWrongPassword)

	_, err = wallet.LoadKey(filepath.Join(t.TempDir(), "missing.key"), "hunter2")
	r.Error(err)
}

func TestBuildersSignForChain(t *testing.T) {
	r := require.New(t)
	w, err := wallet.Generate(7)
	r.NoError(err)
	game := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tx, err := w.SubmitScore(game, 42, big.NewInt(3), []byte{1, 2}, big.NewInt(1000), 5)
	r.NoError(err)
	r.NoError(tx.Verify())
	r.Equal(uint64(7), tx.ChainID)
	r.Equal(core.TxSubmitScore, tx.Type)
	r.Equal(w.Address(), tx.From)
	r.Equal(game, tx.To)
	r.Equal(uint64(5), tx.Nonce)
	r.Equal(int64(1000), tx.AttachedValue().Int64())

	reg, err := w.RegisterPlayer(game, 6)
	r.NoError(err)
	r.NoError(reg.Verify())
	r.Zero(reg.AttachedValue().Sign())

	tx.Nonce = 9
	r.Error(tx.Verify())
}

func TestSignScoreRecoversSigner(t *testing.T) {
	r := require.New(t)
	signer, err := wallet.Generate(31337)
	r.NoError(err)
	game := common.HexToAddress("0x1000000000000000000000000000000000000001")
	player := common.HexToAddress("0x2000000000000000000000000000000000000002")
	nonce := big.NewInt(11)

	sig, err := signer.SignScore(game, "pong", player, 900, nonce)
	r.NoError(err)
	r.Len(sig, 65)

	d := crypto.Domain{Name: "pong", Version: "1", ChainID: 31337, VerifyingContract: game}
	got, err := crypto.Recover(d.ScoreDigest(player, 900, nonce), sig)
	r.NoError(err)
	r.Equal(signer.Address(), got)

	// Any change to the bound fields recovers a different address.
	other := d
	other.Name = "tetris"
	got, err = crypto.Recover(other.ScoreDigest(player, 900, nonce), sig)
	if err == nil {
		r.NotEqual(signer.Address(), got)
	}
	got, err = crypto.Recover(d.ScoreDigest(player, 901, nonce), sig)
	if err == nil {
		r.NotEqual(signer.Address(), got)
	}
}

func TestEncryptedKeyTampering(t *testing.T) {
	r := require.New(t)
	w, err := wallet.Generate(1)
	r.NoError(err)

	ek, err := wallet.EncryptKey(w.PrivKey(), "pw", 1000)
	r.NoError(err)
	r.Equal(w.Address(), ek.Address)

	priv, err := ek.Decrypt("pw")
	r.NoError(err)
	r.Equal(w.Address(), priv.Address())

	swapped := *ek
	swapped.Address = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	_, err = swapped.Decrypt("pw")
	r.ErrorIs(err, wallet.ErrWrongPassword)

	future := *ek
	future.Version = 9
	_, err = future.Decrypt("pw")
	r.ErrorIs(err, wallet.ErrKeystoreFormat)
}
