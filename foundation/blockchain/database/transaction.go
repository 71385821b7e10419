package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Set of errors a transaction can fail validation with.
var (
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrUTXONotFound         = errors.New("utxo not found")
	ErrOwnershipMismatch    = errors.New("ownership mismatch")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrMalformedTransaction = errors.New("malformed transaction")
)

// TxVersion is the current version of the transaction encoding.
const TxVersion uint8 = 1

// TxKind identifies what a transaction does.
type TxKind uint8

// Set of transaction kinds.
const (
	TxKindCoinbase TxKind = iota
	TxKindTransfer
	TxKindData
)

// String implements the fmt.Stringer interface for logging.
func (k TxKind) String() string {
	switch k {
	case TxKindCoinbase:
		return "coinbase"
	case TxKindTransfer:
		return "transfer"
	case TxKindData:
		return "data"
	}

	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// =============================================================================

// Tx is the part of a transaction that identifies it. Its hash is the
// transaction id, so it can be computed before any outputs exist.
type Tx struct {
	Version uint8     `json:"version"`
	Kind    TxKind    `json:"kind"`
	Nonce   uint64    `json:"nonce"` // Chosen by the wallet, keeps identical payments distinct.
	From    string    `json:"from"`  // Public key of the sender, empty for a coinbase.
	To      AccountID `json:"to"`    // Account receiving the value.
	Value   uint64    `json:"value"` // Amount moved in minor units.
	Data    string    `json:"data"`  // 32 byte digest committed by a data transaction.
}

// NewTransferTx constructs a value transfer.
func NewTransferTx(nonce uint64, from string, to AccountID, value uint64) (Tx, error) {
	tx := Tx{
		Version: TxVersion,
		Kind:    TxKindTransfer,
		Nonce:   nonce,
		From:    from,
		To:      to,
		Value:   value,
	}

	if err := tx.validateStructure(0); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// NewDataTx constructs a transaction that commits a digest on chain.
func NewDataTx(nonce uint64, from string, digest string) (Tx, error) {
	tx := Tx{
		Version: TxVersion,
		Kind:    TxKindData,
		Nonce:   nonce,
		From:    from,
		Data:    digest,
	}

	if err := tx.validateStructure(0); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// NewCoinbaseTx constructs the transaction that issues new value. The nonce
// is the block height so coinbases at different heights never collide.
func NewCoinbaseTx(height uint64, to AccountID, value uint64) Tx {
	return Tx{
		Version: TxVersion,
		Kind:    TxKindCoinbase,
		Nonce:   height,
		To:      to,
		Value:   value,
	}
}

// ID returns the transaction id.
func (tx Tx) ID() string {
	return signature.Hash(tx)
}

// Sign uses the specified private key to sign the transaction along with
// the outputs it spends.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey, inputs []OutputRef) (SignedTx, error) {
	if tx.Kind == TxKindCoinbase {
		return SignedTx{}, fmt.Errorf("%w: coinbase transactions are not signed", ErrMalformedTransaction)
	}

	if tx.From != signature.PublicKeyString(privateKey.PublicKey) {
		return SignedTx{}, fmt.Errorf("%w: from does not match the signing key", ErrMalformedTransaction)
	}

	sig, err := signature.Sign(signable{Tx: tx, Inputs: inputs}, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:        tx,
		Inputs:    inputs,
		Signature: sig,
	}

	return signedTx, nil
}

// validateStructure checks the fields make sense for the kind of
// transaction without looking at any chain state.
func (tx Tx) validateStructure(inputs int) error {
	if tx.Version != TxVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedTransaction, tx.Version)
	}

	switch tx.Kind {
	case TxKindCoinbase:
		if tx.From != "" || inputs != 0 {
			return fmt.Errorf("%w: coinbase can't have a sender or inputs", ErrMalformedTransaction)
		}
		if tx.Value == 0 {
			return fmt.Errorf("%w: coinbase value is zero", ErrMalformedTransaction)
		}
		if !tx.To.IsAccountID() {
			return fmt.Errorf("%w: invalid to account", ErrMalformedTransaction)
		}

	case TxKindTransfer:
		if tx.Value == 0 {
			return fmt.Errorf("%w: transfer value is zero", ErrMalformedTransaction)
		}
		if !tx.To.IsAccountID() {
			return fmt.Errorf("%w: invalid to account", ErrMalformedTransaction)
		}
		if tx.Data != "" {
			return fmt.Errorf("%w: transfer can't carry data", ErrMalformedTransaction)
		}
		if tx.From == "" {
			return fmt.Errorf("%w: missing sender", ErrMalformedTransaction)
		}

	case TxKindData:
		if tx.Value != 0 || tx.To != "" || inputs != 0 {
			return fmt.Errorf("%w: data transaction can't move value", ErrMalformedTransaction)
		}
		if !isHash(tx.Data) {
			return fmt.Errorf("%w: data must be a 32 byte hex digest", ErrMalformedTransaction)
		}
		if tx.From == "" {
			return fmt.Errorf("%w: missing sender", ErrMalformedTransaction)
		}

	default:
		return fmt.Errorf("%w: unknown kind %s", ErrMalformedTransaction, tx.Kind)
	}

	return nil
}

// signable is what a sender signs. The inputs are included so a relaying
// node can't swap the outputs being spent.
type signable struct {
	Tx     Tx
	Inputs []OutputRef
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	Inputs    []OutputRef `json:"inputs"`
	Signature string      `json:"sig"`
}

// Validate performs the checks that don't need chain state: the structure
// of the transaction and its signature.
func (tx SignedTx) Validate() error {
	if err := tx.ValidateStructure(); err != nil {
		return err
	}

	return tx.VerifySignature()
}

// ValidateStructure checks the transaction is well formed for its kind.
func (tx SignedTx) ValidateStructure() error {
	if err := tx.Tx.validateStructure(len(tx.Inputs)); err != nil {
		return err
	}

	if tx.Kind == TxKindTransfer && len(tx.Inputs) == 0 {
		return fmt.Errorf("%w: transfer has no inputs", ErrMalformedTransaction)
	}

	seen := make(map[OutputRef]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, exists := seen[in]; exists {
			return fmt.Errorf("%w: input %s spent twice", ErrMalformedTransaction, in)
		}
		seen[in] = struct{}{}
	}

	return nil
}

// VerifySignature checks the signature was produced by the sender's key.
// A coinbase carries no signature.
func (tx SignedTx) VerifySignature() error {
	if tx.Kind == TxKindCoinbase {
		if tx.Signature != "" {
			return fmt.Errorf("%w: coinbase is signed", ErrInvalidSignature)
		}
		return nil
	}

	if err := signature.VerifySignature(tx.From, signable{Tx: tx.Tx, Inputs: tx.Inputs}, tx.Signature); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return nil
}

// FromAccount returns the account id of the sender.
func (tx SignedTx) FromAccount() (AccountID, error) {
	if tx.Kind == TxKindCoinbase {
		return "", nil
	}

	from, err := PublicKeyStringToAccountID(tx.From)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedTransaction, err)
	}

	return from, nil
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%s:%d", tx.Kind, tx.ID(), tx.Value)
}

// =============================================================================

// ResolveInputs looks up every input of the transaction in the view and
// checks the sender owns them and they cover the value being sent. It
// returns the total of the inputs.
func ResolveInputs(tx SignedTx, view UTXOView) (uint64, error) {
	if tx.Kind != TxKindTransfer {
		return 0, nil
	}

	from, err := tx.FromAccount()
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, in := range tx.Inputs {
		out, exists := view.Get(in)
		if !exists {
			return 0, fmt.Errorf("%w: %s", ErrUTXONotFound, in)
		}

		if out.Owner != from {
			return 0, fmt.Errorf("%w: %s owned by %s, not %s", ErrOwnershipMismatch, in, out.Owner, from)
		}

		if total+out.Amount < total {
			return 0, fmt.Errorf("%w: input total overflows", ErrMalformedTransaction)
		}
		total += out.Amount
	}

	if total < tx.Value {
		return 0, fmt.Errorf("%w: inputs %d, value %d", ErrInsufficientFunds, total, tx.Value)
	}

	return total, nil
}

// BuildOutputs computes the outputs a transaction creates. A transfer pays
// the receiver at index 0 and returns change to the sender at index 1 when
// there is any.
func BuildOutputs(tx SignedTx, inputsTotal uint64) ([]TxOutput, error) {
	id := tx.ID()

	switch tx.Kind {
	case TxKindCoinbase:
		return []TxOutput{{Owner: tx.To, Amount: tx.Value, ParentTxID: id, Index: 0}}, nil

	case TxKindTransfer:
		from, err := tx.FromAccount()
		if err != nil {
			return nil, err
		}

		outs := []TxOutput{{Owner: tx.To, Amount: tx.Value, ParentTxID: id, Index: 0}}
		if change := inputsTotal - tx.Value; change > 0 {
			outs = append(outs, TxOutput{Owner: from, Amount: change, ParentTxID: id, Index: 1})
		}
		return outs, nil

	case TxKindData:
		return nil, nil
	}

	return nil, fmt.Errorf("%w: unknown kind %s", ErrMalformedTransaction, tx.Kind)
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block and
// the mempool. This includes a timestamp and the outputs it creates.
type BlockTx struct {
	SignedTx
	TimeStamp uint64     `json:"timestamp"` // Time the transaction was received in milliseconds.
	Outputs   []TxOutput `json:"outputs"`
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx, outputs []TxOutput) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().UnixMilli()),
		Outputs:   outputs,
	}
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two block transactions.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	return tx.ID() == otherTx.ID()
}

// ValidateOutputs checks the recorded outputs are exactly the outputs the
// transaction creates.
func (tx BlockTx) ValidateOutputs(inputsTotal uint64) error {
	exp, err := BuildOutputs(tx.SignedTx, inputsTotal)
	if err != nil {
		return err
	}

	if len(exp) != len(tx.Outputs) {
		return fmt.Errorf("%w: got %d outputs, exp %d", ErrMalformedTransaction, len(tx.Outputs), len(exp))
	}

	for i := range exp {
		if exp[i] != tx.Outputs[i] {
			return fmt.Errorf("%w: output %d doesn't match", ErrMalformedTransaction, i)
		}
	}

	return nil
}
