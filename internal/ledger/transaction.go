package ledger

import (
	"encoding/json"
	"fmt"
)

// Operation is the ledger primitive a transaction uses.
type Operation string

const (
	OperationCreate   Operation = "CREATE"
	OperationTransfer Operation = "TRANSFER"
)

// Version of the transaction schema.
const Version = "2.0"

// ConditionType is the only condition this substrate supports.
const ConditionType = "ed25519-sha-256"

// Transaction is the wire shape of one ledger record.
type Transaction struct {
	ID        string          `json:"id"`
	Version   string          `json:"version"`
	Operation Operation       `json:"operation"`
	Asset     Asset           `json:"asset"`
	Metadata  json.RawMessage `json:"metadata"`
	Inputs    []Input         `json:"inputs"`
	Outputs   []Output        `json:"outputs"`
}

// Asset carries the payload for CREATE or the asset id for TRANSFER.
type Asset struct {
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// Input spends an output of a previous transaction. CREATE inputs have no
// Fulfills.
type Input struct {
	OwnersBefore []string   `json:"owners_before"`
	Fulfills     *OutputRef `json:"fulfills"`
	Fulfillment  string     `json:"fulfillment"`
}

// OutputRef addresses one output of a committed transaction.
type OutputRef struct {
	TransactionID string `json:"transaction_id"`
	OutputIndex   int    `json:"output_index"`
}

func (r OutputRef) String() string {
	return fmt.Sprintf("%s:%d", r.TransactionID, r.OutputIndex)
}

// Output locks the asset to public keys.
type Output struct {
	PublicKeys []string  `json:"public_keys"`
	Amount     string    `json:"amount"`
	Condition  Condition `json:"condition"`
}

type Condition struct {
	Details ConditionDetails `json:"details"`
	URI     string           `json:"uri"`
}

type ConditionDetails struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
}

// AssetID returns the id of the asset this transaction belongs to.
func (tx *Transaction) AssetID() string {
	if tx.Operation == OperationCreate {
		return tx.ID
	}
	return tx.Asset.ID
}

// NewOutput locks one unit to owner. A malformed owner key leaves the
// condition URI empty, which Validate rejects.
func NewOutput(owner string) Output {
	uri, _ := ConditionURI(owner)
	return Output{
		PublicKeys: []string{owner},
		Amount:     "1",
		Condition: Condition{Details: ConditionDetails{
			Type:      ConditionType,
			PublicKey: owner,
		}, URI: uri},
	}
}

// NewCreate builds an unsigned CREATE owned by owner.
func NewCreate(owner string, data, metadata json.RawMessage) *Transaction {
	return &Transaction{
		Version:   Version,
		Operation: OperationCreate,
		Asset:     Asset{Data: data},
		Metadata:  metadata,
		Inputs:    []Input{{OwnersBefore: []string{owner}}},
		Outputs:   []Output{NewOutput(owner)},
	}
}

// NewTransfer builds an unsigned TRANSFER spending spend of assetID and
// locking the result to recipient.
func NewTransfer(assetID string, spend OutputRef, owners []string, recipient string, metadata json.RawMessage) *Transaction {
	fulfills := spend
	return &Transaction{
		Version:   Version,
		Operation: OperationTransfer,
		Asset:     Asset{ID: assetID},
		Metadata:  metadata,
		Inputs:    []Input{{OwnersBefore: owners, Fulfills: &fulfills}},
		Outputs:   []Output{NewOutput(recipient)},
	}
}

// Decode parses a raw transaction payload.
func Decode(raw []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if tx.ID == "" || tx.Operation == "" {
		return nil, fmt.Errorf("decode transaction: missing id or operation")
	}
	return &tx, nil
}

// Encode returns the canonical payload of tx.
func Encode(tx *Transaction) ([]byte, error) {
	return canonical(tx)
}
