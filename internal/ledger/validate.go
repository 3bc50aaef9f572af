package ledger

import (
	"errors"
	"fmt"
	"slices"
)

// Snapshot is the committed state a substrate validates a new transaction
// against.
type Snapshot interface {
	// Transaction returns a committed transaction or ErrNotFound.
	Transaction(id string) (*Transaction, error)
	// SpentBy returns the id of the transaction that consumed ref, if any.
	SpentBy(ref OutputRef) (string, bool, error)
}

// Validate applies the substrate rules to tx:
//   - the id is the content hash and the schema version is known;
//   - the id has not been committed before;
//   - CREATE carries asset data and a single unfulfilled input;
//   - TRANSFER spends unspent outputs of the same asset, owned by the signers;
//   - every output carries the condition of its key;
//   - every input carries a valid ed25519-sha-256 fulfillment.
func Validate(tx *Transaction, snap Snapshot) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalid)
	}
	if tx.Version != Version {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalid, tx.Version)
	}
	want, err := Hash(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if tx.ID != want {
		return fmt.Errorf("%w: id does not match content hash", ErrInvalid)
	}

	switch _, err := snap.Transaction(tx.ID); {
	case err == nil:
		return ErrDuplicate
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return fmt.Errorf("%w: transaction needs inputs and outputs", ErrInvalid)
	}
	for _, out := range tx.Outputs {
		if len(out.PublicKeys) == 0 || out.Amount == "" {
			return fmt.Errorf("%w: output without owner or amount", ErrInvalid)
		}
		if uri, err := ConditionURI(out.Condition.Details.PublicKey); err != nil || uri != out.Condition.URI {
			return fmt.Errorf("%w: output condition does not match its key", ErrInvalid)
		}
	}

	switch tx.Operation {
	case OperationCreate:
		if err := validateCreate(tx); err != nil {
			return err
		}
	case OperationTransfer:
		if err := validateTransfer(tx, snap); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalid, tx.Operation)
	}

	return verifyFulfillments(tx)
}

func validateCreate(tx *Transaction) error {
	if len(tx.Asset.Data) == 0 || tx.Asset.ID != "" {
		return fmt.Errorf("%w: CREATE must carry asset data", ErrInvalid)
	}
	if len(tx.Inputs) != 1 || tx.Inputs[0].Fulfills != nil {
		return fmt.Errorf("%w: CREATE takes exactly one unfulfilled input", ErrInvalid)
	}
	return nil
}

func validateTransfer(tx *Transaction, snap Snapshot) error {
	if tx.Asset.ID == "" || len(tx.Asset.Data) != 0 {
		return fmt.Errorf("%w: TRANSFER must reference an asset id", ErrInvalid)
	}
	for _, in := range tx.Inputs {
		if in.Fulfills == nil {
			return fmt.Errorf("%w: TRANSFER input must fulfill an output", ErrInvalid)
		}
		prev, err := snap.Transaction(in.Fulfills.TransactionID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: input %s does not exist", ErrInvalid, in.Fulfills)
		}
		if err != nil {
			return err
		}
		if prev.AssetID() != tx.Asset.ID {
			return fmt.Errorf("%w: input %s belongs to another asset", ErrInvalid, in.Fulfills)
		}
		if in.Fulfills.OutputIndex < 0 || in.Fulfills.OutputIndex >= len(prev.Outputs) {
			return fmt.Errorf("%w: input %s has no such output", ErrInvalid, in.Fulfills)
		}
		if !slices.Equal(in.OwnersBefore, prev.Outputs[in.Fulfills.OutputIndex].PublicKeys) {
			return fmt.Errorf("%w: input %s is not owned by the signer", ErrInvalid, in.Fulfills)
		}
		spender, spent, err := snap.SpentBy(*in.Fulfills)
		if err != nil {
			return err
		}
		if spent {
			return fmt.Errorf("%w: %s consumed by %s", ErrDoubleSpend, in.Fulfills, spender)
		}
	}
	return nil
}
