// Package issuer holds the identity of an issuing party: the ed25519 key that
// signs its ledger transactions and the symmetric key that seals holder
// identifiers. A Context is passed explicitly to every operation that needs
// it; several can coexist in one process.
package issuer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
)

// Context is one issuer identity.
type Context struct {
	signing   ed25519.PrivateKey
	publicKey string
	cipherKey []byte
}

// New builds a Context from a 32-byte ed25519 seed and a 32-byte cipher key.
func New(seed, cipherKey []byte) (*Context, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("issuer seed must be %d bytes", ed25519.SeedSize)
	}
	if len(cipherKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("issuer cipher key must be %d bytes", chacha20poly1305.KeySize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Context{
		signing:   priv,
		publicKey: ledger.EncodePublicKey(priv.Public().(ed25519.PublicKey)),
		cipherKey: append([]byte(nil), cipherKey...),
	}, nil
}

// Generate creates a fresh, random issuer.
func Generate() (*Context, error) {
	seed, key, err := GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}
	return New(seed, key)
}

// GenerateKeyMaterial returns a random seed and cipher key.
func GenerateKeyMaterial() (seed, cipherKey []byte, err error) {
	seed = make([]byte, ed25519.SeedSize)
	cipherKey = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, err
	}
	if _, err := rand.Read(cipherKey); err != nil {
		return nil, nil, err
	}
	return seed, cipherKey, nil
}

// PublicKey is the base58 public identity of the issuer.
func (c *Context) PublicKey() string {
	return c.publicKey
}

// Sign fills the id and fulfillments of tx with this issuer's key.
func (c *Context) Sign(tx *ledger.Transaction) error {
	return ledger.Sign(tx, c.signing)
}

// Owns reports whether key is this issuer's public key.
func (c *Context) Owns(key string) bool {
	return c != nil && key == c.publicKey
}

// Encrypt seals identifier for this issuer. The issuer public key is bound as
// associated data, so ciphertext moved under another issuer's name fails to
// open.
func (c *Context) Encrypt(identifier string) (models.EncryptedIdentifier, error) {
	aead, err := chacha20poly1305.NewX(c.cipherKey)
	if err != nil {
		return models.EncryptedIdentifier{}, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(identifier)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return models.EncryptedIdentifier{}, err
	}
	sealed := aead.Seal(nonce, nonce, []byte(identifier), []byte(c.publicKey))
	return models.EncryptedIdentifier{
		EncryptedData:   base64.StdEncoding.EncodeToString(sealed),
		IssuerPublicKey: c.publicKey,
	}, nil
}

// Decrypt returns the plaintext identifier when this issuer sealed it, and
// models.Redacted otherwise. Corrupt ciphertext is also redacted.
func (c *Context) Decrypt(enc models.EncryptedIdentifier) string {
	if !c.Owns(enc.IssuerPublicKey) {
		return models.Redacted
	}
	plain, err := c.open(enc.EncryptedData)
	if err != nil {
		return models.Redacted
	}
	return plain
}

var errShortCiphertext = errors.New("ciphertext too short")

func (c *Context) open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(c.cipherKey)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return "", errShortCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(c.publicKey))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
