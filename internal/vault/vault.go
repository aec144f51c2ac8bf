package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16

	// DefaultKeyVersion labels derivations for new assets. Older versions
	// stay decryptable because the version is recorded per envelope.
	DefaultKeyVersion = "v1"
)

var (
	// ErrDecrypt is the single failure returned for any tag or AAD
	// mismatch. Callers never learn which check failed.
	ErrDecrypt = errors.New("vault: decryption failed")

	ErrBadMasterKey = errors.New("vault: master key must be 32 bytes")
)

// Envelope carries everything persisted alongside a confidential asset.
// The data key itself is absent: it is re-derived on every decrypt.
type Envelope struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
	KeyVersion string
}

// Engine performs envelope encryption of confidential content. The master
// key is injected at construction; there is no process-global key state.
type Engine struct {
	masterKey []byte
}

// New builds an Engine from a 256-bit master key.
func New(masterKey []byte) (*Engine, error) {
	if len(masterKey) != keySize {
		return nil, ErrBadMasterKey
	}
	key := make([]byte, keySize)
	copy(key, masterKey)
	return &Engine{masterKey: key}, nil
}

// NewFromHex builds an Engine from the hex form used in configuration.
func NewFromHex(masterKeyHex string) (*Engine, error) {
	key, err := hex.DecodeString(strings.TrimSpace(masterKeyHex))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMasterKey, err)
	}
	return New(key)
}

// DeriveKey produces the 32-byte data key for an asset under a key version.
// Derivation is deterministic: identical inputs always reproduce the same
// key, so no data key ever needs to be stored.
func (e *Engine) DeriveKey(assetID, keyVersion string) ([]byte, error) {
	if assetID == "" {
		return nil, errors.New("vault: asset id is required")
	}
	if keyVersion == "" {
		keyVersion = DefaultKeyVersion
	}
	r := hkdf.New(sha256.New, e.masterKey, []byte(assetID), []byte("asset-data:"+keyVersion))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext for the asset under a fresh random nonce. The AAD
// binds the ciphertext to the asset identity and declared mime type, so a
// ciphertext moved onto another record fails authentication.
func (e *Engine) Encrypt(plaintext []byte, assetID, mimeType, keyVersion string) (Envelope, error) {
	if keyVersion == "" {
		keyVersion = DefaultKeyVersion
	}
	dataKey, err := e.DeriveKey(assetID, keyVersion)
	if err != nil {
		return Envelope{}, err
	}
	aead, err := newGCM(dataKey)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad(assetID, mimeType))
	split := len(sealed) - tagSize
	return Envelope{
		Ciphertext: sealed[:split],
		Nonce:      nonce,
		Tag:        sealed[split:],
		KeyVersion: keyVersion,
	}, nil
}

// Decrypt re-derives the data key from the envelope's key version and opens
// the ciphertext. The tag is verified before any plaintext is released; all
// failures collapse into ErrDecrypt.
func (e *Engine) Decrypt(env Envelope, assetID, mimeType string) ([]byte, error) {
	dataKey, err := e.DeriveKey(assetID, env.KeyVersion)
	if err != nil {
		return nil, ErrDecrypt
	}
	aead, err := newGCM(dataKey)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(env.Nonce) != nonceSize || len(env.Tag) != tagSize {
		return nil, ErrDecrypt
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+tagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)
	plaintext, err := aead.Open(nil, env.Nonce, sealed, aad(assetID, mimeType))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func aad(assetID, mimeType string) []byte {
	return []byte(assetID + "|confidential|" + mimeType)
}
