// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// ErrAlreadyPending is returned when a transaction with the same id is
// already in the mempool.
var ErrAlreadyPending = errors.New("transaction already pending")

// Mempool represents a cache of transactions waiting to be mined, kept in
// the order they were admitted. Alongside the transactions it tracks which
// confirmed outputs they spend and which outputs they create, so later
// transactions can't spend the same output and can spend pending change.
type Mempool struct {
	mu      sync.RWMutex
	order   []string
	pool    map[string]database.BlockTx
	spent   map[database.OutputRef]string
	outputs map[database.OutputRef]database.TxOutput
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool:    make(map[string]database.BlockTx),
		spent:   make(map[database.OutputRef]string),
		outputs: make(map[database.OutputRef]database.TxOutput),
	}
}

// Validate performs the checks that don't need chain state. Signature
// checks are expensive, so this is done before the caller takes any lock.
func Validate(tx database.SignedTx) error {
	if tx.Kind == database.TxKindCoinbase {
		return fmt.Errorf("%w: coinbase can't be submitted", database.ErrMalformedTransaction)
	}

	if err := tx.ValidateStructure(); err != nil {
		return err
	}

	return tx.VerifySignature()
}

// Admit resolves the transaction's inputs against the confirmed outputs
// minus what is already pending spent plus the outputs pending transactions
// create. On success the transaction is added with its computed outputs.
// The transaction must have passed Validate.
func (mp *Mempool) Admit(tx database.SignedTx, confirmed database.UTXOView) (database.BlockTx, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.admit(database.NewBlockTx(tx, nil), confirmed)
}

// admit runs the stateful gates and adds the transaction.
func (mp *Mempool) admit(tx database.BlockTx, confirmed database.UTXOView) (database.BlockTx, error) {
	id := tx.ID()
	if _, exists := mp.pool[id]; exists {
		return database.BlockTx{}, fmt.Errorf("%w: %s", ErrAlreadyPending, id)
	}

	total, err := database.ResolveInputs(tx.SignedTx, mp.view(confirmed))
	if err != nil {
		return database.BlockTx{}, err
	}

	outputs, err := database.BuildOutputs(tx.SignedTx, total)
	if err != nil {
		return database.BlockTx{}, err
	}
	tx.Outputs = outputs

	mp.order = append(mp.order, id)
	mp.pool[id] = tx

	for _, in := range tx.Inputs {
		mp.spent[in] = id
	}

	for _, out := range outputs {
		mp.outputs[out.Ref()] = out
	}

	return tx, nil
}

// view returns the confirmed outputs as seen through the mempool: pending
// spent outputs are hidden and pending outputs are visible. The overlay
// shares the pool's maps so the caller must hold the lock while using it.
func (mp *Mempool) view(confirmed database.UTXOView) database.UTXOView {
	return overlay{
		confirmed: confirmed,
		spent:     mp.spent,
		outputs:   mp.outputs,
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Get returns the pending transaction with the specified id.
func (mp *Mempool) Get(id string) (database.BlockTx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	tx, exists := mp.pool[id]
	return tx, exists
}

// SpentBy returns the id of the pending transaction spending the output.
func (mp *Mempool) SpentBy(ref database.OutputRef) (string, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	id, exists := mp.spent[ref]
	return id, exists
}

// PickBest returns the next set of transactions for the next block in the
// order they were admitted. A transaction spending pending change always
// comes after the transaction creating it. Pass -1 for all the
// transactions.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if howMany < 0 || howMany > len(mp.order) {
		howMany = len(mp.order)
	}

	trans := make([]database.BlockTx, howMany)
	for i, id := range mp.order[:howMany] {
		trans[i] = mp.pool[id]
	}

	return trans
}

// Copy returns every pending transaction in admission order.
func (mp *Mempool) Copy() []database.BlockTx {
	return mp.PickBest(-1)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.truncate()
}

func (mp *Mempool) truncate() {
	mp.order = nil
	mp.pool = make(map[string]database.BlockTx)
	mp.spent = make(map[database.OutputRef]string)
	mp.outputs = make(map[database.OutputRef]database.TxOutput)
}

// Rebuild clears the pool and admits the candidates again in order against
// the new confirmed outputs. Candidates already recorded in the chain and
// coinbase transactions are skipped. Candidates that no longer pass are
// dropped and returned.
func (mp *Mempool) Rebuild(confirmed database.UTXOView, candidates []database.BlockTx, inChain func(id string) bool) []database.BlockTx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.truncate()

	var dropped []database.BlockTx
	for _, tx := range candidates {
		if tx.Kind == database.TxKindCoinbase || inChain(tx.ID()) {
			continue
		}

		if _, err := mp.admit(tx, confirmed); err != nil {
			if errors.Is(err, ErrAlreadyPending) {
				continue
			}
			dropped = append(dropped, tx)
		}
	}

	return dropped
}

// =============================================================================

// overlay resolves outputs through the pending state of the mempool.
type overlay struct {
	confirmed database.UTXOView
	spent     map[database.OutputRef]string
	outputs   map[database.OutputRef]database.TxOutput
}

// Get implements the database.UTXOView interface.
func (o overlay) Get(ref database.OutputRef) (database.TxOutput, bool) {
	if _, spent := o.spent[ref]; spent {
		return database.TxOutput{}, false
	}

	if out, exists := o.outputs[ref]; exists {
		return out, true
	}

	return o.confirmed.Get(ref)
}
