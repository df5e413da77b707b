// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tolelom/artcade/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keystoreVersion = 1
	kdfName         = "pbkdf2-sha256"
	// DefaultKDFIterations is used for newly written keystores.
	DefaultKDFIterations = 210_000
)

var (
	// ErrWrongPassword is returned when a keystore cannot be decrypted.
	ErrWrongPassword = errors.New("wrong password or corrupted keystore")
	// ErrKeystoreFormat is returned for files this version cannot read.
	ErrKeystoreFormat = errors.New("unsupported keystore format")
)

type kdfParams struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Salt       hexutil.Bytes `json:"salt"`
}

// EncryptedKey is the on-disk form of a private key. The KDF parameters are
// stored alongside the ciphertext so they can be raised without breaking
// existing files.
type EncryptedKey struct {
	Version    int            `json:"version"`
	Address    common.Address `json:"address"`
	KDF        kdfParams      `json:"kdf"`
	Nonce      hexutil.Bytes  `json:"nonce"`
	CipherText hexutil.Bytes  `json:"cipher_text"`
}

// EncryptKey seals priv with AES-256-GCM under a PBKDF2-derived key.
func EncryptKey(priv crypto.PrivateKey, password string, iterations int) (*EncryptedKey, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	ek := &EncryptedKey{
		Version: keystoreVersion,
		Address: priv.Address(),
		KDF:     kdfParams{Name: kdfName, Iterations: iterations, Salt: salt},
	}
	gcm, err := ek.cipher(password)
	if err != nil {
		return nil, err
	}
	ek.Nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, ek.Nonce); err != nil {
		return nil, err
	}
	// The address is authenticated so a swapped header is detected.
	ek.CipherText = gcm.Seal(nil, ek.Nonce, priv.Bytes(), ek.Address.Bytes())
	return ek, nil
}

// Decrypt recovers the private key.
func (ek *EncryptedKey) Decrypt(password string) (crypto.PrivateKey, error) {
	if ek.Version != keystoreVersion || ek.KDF.Name != kdfName || ek.KDF.Iterations <= 0 {
		return crypto.PrivateKey{}, fmt.Errorf("%w: version %d kdf %q", ErrKeystoreFormat, ek.Version, ek.KDF.Name)
	}
	gcm, err := ek.cipher(password)
	if err != nil {
		return crypto.PrivateKey{}, err
	}
	if len(ek.Nonce) != gcm.NonceSize() {
		return crypto.PrivateKey{}, fmt.Errorf("%w: nonce length %d", ErrKeystoreFormat, len(ek.Nonce))
	}
	raw, err := gcm.Open(nil, ek.Nonce, ek.CipherText, ek.Address.Bytes())
	if err != nil {
		return crypto.PrivateKey{}, ErrWrongPassword
	}
	priv, err := crypto.PrivKeyFromBytes(raw)
	if err != nil {
		return crypto.PrivateKey{}, err
	}
	if priv.Address() != ek.Address {
		return crypto.PrivateKey{}, fmt.Errorf("keystore address %s does not match key %s", ek.Address.Hex(), priv.Address().Hex())
	}
	return priv, nil
}

func (ek *EncryptedKey) cipher(password string) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), ek.KDF.Salt, ek.KDF.Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SaveKey encrypts priv with password and writes it to path (mode 0600).
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	ek, err := EncryptKey(priv, password, DefaultKDFIterations)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(ek, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey reads and decrypts the keystore at path.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crypto.PrivateKey{}, err
	}
	var ek EncryptedKey
	if err := json.Unmarshal(data, &ek); err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("%w: %v", ErrKeystoreFormat, err)
	}
	return ek.Decrypt(password)
}
