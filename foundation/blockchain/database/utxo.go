package database

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// OutputRef identifies a single output by the transaction that created it
// and its position in that transaction's outputs.
type OutputRef struct {
	TxID  string `json:"tx_id"`
	Index uint32 `json:"index"`
}

// String implements the fmt.Stringer interface for logging.
func (r OutputRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// TxOutput is a spendable claim on value owned by an account. Once created
// it's never modified, only removed when spent.
type TxOutput struct {
	Owner      AccountID `json:"owner"`
	Amount     uint64    `json:"amount"`
	ParentTxID string    `json:"parent_tx_id"`
	Index      uint32    `json:"index"`
}

// Ref returns the identity of the output.
func (o TxOutput) Ref() OutputRef {
	return OutputRef{TxID: o.ParentTxID, Index: o.Index}
}

// =============================================================================

// UTXOView represents the behavior needed to resolve transaction inputs.
type UTXOView interface {
	Get(ref OutputRef) (TxOutput, bool)
}

// UTXOSet is the set of unspent outputs keyed by output identity. It's not
// safe for concurrent use, the owner of the set provides the locking.
type UTXOSet struct {
	outputs map[OutputRef]TxOutput
}

// NewUTXOSet constructs an empty set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{
		outputs: make(map[OutputRef]TxOutput),
	}
}

// Get returns the unspent output for the reference.
func (u *UTXOSet) Get(ref OutputRef) (TxOutput, bool) {
	out, exists := u.outputs[ref]
	return out, exists
}

// Contains reports whether the referenced output is unspent.
func (u *UTXOSet) Contains(ref OutputRef) bool {
	_, exists := u.outputs[ref]
	return exists
}

// Len returns the number of unspent outputs.
func (u *UTXOSet) Len() int {
	return len(u.outputs)
}

// Apply removes the transaction's inputs and adds its outputs. Everything
// is checked before anything is changed so a failure leaves the set as it
// was.
func (u *UTXOSet) Apply(tx BlockTx) error {
	seen := make(map[OutputRef]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, exists := seen[in]; exists {
			return fmt.Errorf("%w: input %s spent twice", ErrMalformedTransaction, in)
		}
		seen[in] = struct{}{}

		if _, exists := u.outputs[in]; !exists {
			return fmt.Errorf("%w: %s", ErrUTXONotFound, in)
		}
	}

	for _, out := range tx.Outputs {
		if _, exists := u.outputs[out.Ref()]; exists {
			return fmt.Errorf("%w: output %s already exists", ErrMalformedTransaction, out.Ref())
		}
	}

	for _, in := range tx.Inputs {
		delete(u.outputs, in)
	}

	for _, out := range tx.Outputs {
		u.outputs[out.Ref()] = out
	}

	return nil
}

// BalanceOf sums the unspent outputs owned by the account.
func (u *UTXOSet) BalanceOf(account AccountID) uint64 {
	var balance uint64
	for _, out := range u.outputs {
		if out.Owner == account {
			balance += out.Amount
		}
	}

	return balance
}

// OutputsOf returns the unspent outputs owned by the account in a stable
// order.
func (u *UTXOSet) OutputsOf(account AccountID) []TxOutput {
	var outs []TxOutput
	for _, out := range u.outputs {
		if out.Owner == account {
			outs = append(outs, out)
		}
	}

	sortOutputs(outs)

	return outs
}

// Values returns all the unspent outputs in a stable order.
func (u *UTXOSet) Values() []TxOutput {
	outs := make([]TxOutput, 0, len(u.outputs))
	for _, out := range u.outputs {
		outs = append(outs, out)
	}

	sortOutputs(outs)

	return outs
}

// Copy returns an independent copy of the set.
func (u *UTXOSet) Copy() *UTXOSet {
	outputs := make(map[OutputRef]TxOutput, len(u.outputs))
	for ref, out := range u.outputs {
		outputs[ref] = out
	}

	return &UTXOSet{outputs: outputs}
}

// Hash returns a digest over the sorted contents of the set.
func (u *UTXOSet) Hash() string {
	return signature.Hash(u.Values())
}

// Equal reports whether both sets hold exactly the same outputs.
func (u *UTXOSet) Equal(other *UTXOSet) bool {
	if len(u.outputs) != len(other.outputs) {
		return false
	}

	for ref, out := range u.outputs {
		if o, exists := other.outputs[ref]; !exists || o != out {
			return false
		}
	}

	return true
}

// NewUTXOSetFromOutputs constructs a set holding the specified outputs.
func NewUTXOSetFromOutputs(outs []TxOutput) (*UTXOSet, error) {
	u := NewUTXOSet()
	for _, out := range outs {
		if _, exists := u.outputs[out.Ref()]; exists {
			return nil, fmt.Errorf("duplicate output %s", out.Ref())
		}
		u.outputs[out.Ref()] = out
	}

	return u, nil
}

// =============================================================================

// sortOutputs orders outputs by parent transaction and index.
func sortOutputs(outs []TxOutput) {
	sort.Slice(outs, func(i, j int) bool {
		if outs[i].ParentTxID != outs[j].ParentTxID {
			return outs[i].ParentTxID < outs[j].ParentTxID
		}
		return outs[i].Index < outs[j].Index
	})
}
