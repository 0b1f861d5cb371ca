package secure

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Vault is the encryption + blind-index capability consumed by the models
// and the dedup engine. Matching never decrypts: equality search runs on
// blind-index tokens only.
type Vault interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(ciphertext []byte) (string, error)
	// BlindIndex returns a deterministic, non-reversible token for plaintext.
	// The context string scopes the token space per identifier type so equal
	// plaintexts of different types never collide.
	BlindIndex(plaintext string, context string) string
}

// ChaChaVault implements Vault with ChaCha20-Poly1305 for values at rest and
// HMAC-SHA256 over an HKDF-derived per-context key for blind indexes.
type ChaChaVault struct {
	masterKey []byte
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// NewVaultFromEnv builds a vault from VAULT_MASTER_KEY (32 bytes, hex).
func NewVaultFromEnv() (*ChaChaVault, error) {
	raw := strings.TrimSpace(os.Getenv("VAULT_MASTER_KEY"))
	if raw == "" {
		return nil, errors.New("VAULT_MASTER_KEY is required")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errors.New("VAULT_MASTER_KEY must be hex")
	}
	return NewVault(key)
}

func NewVault(masterKey []byte) (*ChaChaVault, error) {
	if len(masterKey) != chacha20poly1305.KeySize {
		return nil, errors.New("vault master key must be 32 bytes")
	}
	return &ChaChaVault{masterKey: masterKey}, nil
}

// deriveKey expands the master key into a purpose-scoped subkey. The info
// string keeps encryption and per-context blind-index keys independent.
func (v *ChaChaVault) deriveKey(info string) []byte {
	r := hkdf.New(sha256.New, v.masterKey, nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		panic(err)
	}
	return key
}

func (v *ChaChaVault) Encrypt(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.deriveKey("kinship/value-encryption"))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (v *ChaChaVault) Decrypt(ciphertext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.deriveKey("kinship/value-encryption"))
	if err != nil {
		return "", err
	}
	if len(ciphertext) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (v *ChaChaVault) BlindIndex(plaintext string, context string) string {
	mac := hmac.New(sha256.New, v.deriveKey("kinship/blind-index/"+context))
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
