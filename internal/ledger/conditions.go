package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// ed25519Cost is the fixed cost of an ed25519-sha-256 condition.
const ed25519Cost = 131072

// ed25519Tag is the crypto-conditions type tag of ed25519-sha-256.
var ed25519Tag = asn1.Tag(4).ContextSpecific().Constructed()

var errMalformedFulfillment = errors.New("malformed ed25519-sha-256 fulfillment")

// EncodeFulfillment renders pub and sig as a base64url ed25519-sha-256
// fulfillment URI, the form BigchainDB nodes accept on inputs.
func EncodeFulfillment(pub ed25519.PublicKey, sig []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return "", errMalformedFulfillment
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(ed25519Tag, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.Tag(0).ContextSpecific(), func(b *cryptobyte.Builder) { b.AddBytes(pub) })
		b.AddASN1(asn1.Tag(1).ContextSpecific(), func(b *cryptobyte.Builder) { b.AddBytes(sig) })
	})
	der, err := b.Bytes()
	if err != nil {
		return "", fmt.Errorf("encode fulfillment: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(der), nil
}

// DecodeFulfillment parses a fulfillment URI into its public key and signature.
func DecodeFulfillment(uri string) (ed25519.PublicKey, []byte, error) {
	der, err := base64.RawURLEncoding.DecodeString(uri)
	if err != nil {
		return nil, nil, errMalformedFulfillment
	}
	var body, pub, sig cryptobyte.String
	s := cryptobyte.String(der)
	if !s.ReadASN1(&body, ed25519Tag) || !s.Empty() ||
		!body.ReadASN1(&pub, asn1.Tag(0).ContextSpecific()) ||
		!body.ReadASN1(&sig, asn1.Tag(1).ContextSpecific()) || !body.Empty() {
		return nil, nil, errMalformedFulfillment
	}
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return nil, nil, errMalformedFulfillment
	}
	return ed25519.PublicKey(pub), []byte(sig), nil
}

// ConditionURI returns the ni:/// condition an output locked to the base58
// key owner carries.
func ConditionURI(owner string) (string, error) {
	pub := base58.Decode(owner)
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("condition for %q: want %d byte key", owner, ed25519.PublicKeySize)
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.Tag(0).ContextSpecific(), func(b *cryptobyte.Builder) { b.AddBytes(pub) })
	})
	fingerprint, err := b.Bytes()
	if err != nil {
		return "", fmt.Errorf("condition fingerprint: %w", err)
	}
	sum := sha256.Sum256(fingerprint)
	return fmt.Sprintf("ni:///sha-256;%s?fpt=%s&cost=%d",
		base64.RawURLEncoding.EncodeToString(sum[:]), ConditionType, ed25519Cost), nil
}
