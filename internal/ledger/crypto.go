package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/sha3"
)

// EncodePublicKey renders an ed25519 public key as base58.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// DecodePublicKey parses a base58 ed25519 public key.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw := base58.Decode(s)
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key %q: want %d bytes, got %d", s, ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// canonical serialises v with sorted keys, no insignificant whitespace and
// no HTML escaping.
func canonical(v any) ([]byte, error) {
	generic, err := generic(v)
	if err != nil {
		return nil, err
	}
	return encodeGeneric(generic)
}

func generic(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeGeneric(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// serialize renders tx the way a BigchainDB node hashes it: canonical JSON
// with a null id and, for signing, null fulfillments.
func serialize(tx *Transaction, withFulfillments bool) ([]byte, error) {
	g, err := generic(tx)
	if err != nil {
		return nil, err
	}
	body, ok := g.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("transaction is not an object")
	}
	body["id"] = nil
	if !withFulfillments {
		inputs, _ := body["inputs"].([]any)
		for _, in := range inputs {
			if m, ok := in.(map[string]any); ok {
				m["fulfillment"] = nil
			}
		}
	}
	return encodeGeneric(body)
}

// Hash computes the transaction id: sha3-256 over the canonical body with a
// null id. Fulfillments are covered, so the id is only final once signed.
func Hash(tx *Transaction) (string, error) {
	raw, err := serialize(tx, true)
	if err != nil {
		return "", fmt.Errorf("hash transaction: %w", err)
	}
	sum := sha3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// signingDigest is the message an input's owner signs: sha3-256 of the body
// without id and fulfillments, extended with the output being spent so a
// fulfillment cannot be replayed on another input.
func signingDigest(unsigned []byte, in Input) []byte {
	h := sha3.New256()
	h.Write(unsigned)
	if in.Fulfills != nil {
		h.Write([]byte(in.Fulfills.TransactionID + strconv.Itoa(in.Fulfills.OutputIndex)))
	}
	return h.Sum(nil)
}

// Sign fills every input's fulfillment with priv's ed25519-sha-256
// fulfillment and then sets tx.ID.
func Sign(tx *Transaction, priv ed25519.PrivateKey) error {
	unsigned, err := serialize(tx, false)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("sign transaction: unexpected public key type")
	}
	for i := range tx.Inputs {
		sig := ed25519.Sign(priv, signingDigest(unsigned, tx.Inputs[i]))
		ff, err := EncodeFulfillment(pub, sig)
		if err != nil {
			return fmt.Errorf("sign transaction: %w", err)
		}
		tx.Inputs[i].Fulfillment = ff
	}
	id, err := Hash(tx)
	if err != nil {
		return err
	}
	tx.ID = id
	return nil
}

// verifyFulfillments checks that every input of tx carries a valid signature
// by its first owner.
func verifyFulfillments(tx *Transaction) error {
	unsigned, err := serialize(tx, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, in := range tx.Inputs {
		if len(in.OwnersBefore) == 0 {
			return fmt.Errorf("%w: input has no owners", ErrInvalid)
		}
		owner, err := DecodePublicKey(in.OwnersBefore[0])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		pub, sig, err := DecodeFulfillment(in.Fulfillment)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if !pub.Equal(owner) {
			return fmt.Errorf("%w: fulfillment signed by a non-owner", ErrInvalid)
		}
		if !ed25519.Verify(pub, signingDigest(unsigned, in), sig) {
			return fmt.Errorf("%w: invalid fulfillment signature", ErrInvalid)
		}
	}
	return nil
}
