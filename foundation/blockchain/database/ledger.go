package database

import (
	"fmt"
	"math/big"

	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
)

// DifficultyFunc returns the difficulty a block at the specified height must
// be mined at given its parent.
type DifficultyFunc func(height uint64, parent BlockHeader) uint16

// RewardFunc returns the coinbase value paid to the miner of a block at the
// specified height. Zero means the block carries no coinbase.
type RewardFunc func(height uint64) uint64

// Rules are the policies a chain is validated and mined with.
type Rules struct {
	Difficulty DifficultyFunc
	Reward     RewardFunc
}

// DefaultRules uses the constant difficulty and mining reward from the
// genesis file.
func DefaultRules(gen genesis.Genesis) Rules {
	return Rules{
		Difficulty: func(uint64, BlockHeader) uint16 { return gen.Difficulty },
		Reward:     func(uint64) uint64 { return gen.MiningReward },
	}
}

// withDefaults fills in any rule not provided.
func (r Rules) withDefaults(gen genesis.Genesis) Rules {
	def := DefaultRules(gen)
	if r.Difficulty == nil {
		r.Difficulty = def.Difficulty
	}
	if r.Reward == nil {
		r.Reward = def.Reward
	}

	return r
}

// Work returns the expected number of hashes needed to solve a block at the
// specified difficulty, 16^difficulty.
func Work(difficulty uint16) *big.Int {
	return new(big.Int).Exp(big.NewInt(16), big.NewInt(int64(difficulty)), nil)
}

// =============================================================================

// TxPosition locates a transaction in the chain.
type TxPosition struct {
	BlockNumber uint64 `json:"block_number"`
	Index       int    `json:"index"`
}

// Ledger is the state derived from folding the chain: the unspent outputs
// and where every transaction lives.
type Ledger struct {
	UTXOs     *UTXOSet
	positions map[string]TxPosition
}

// NewLedger constructs an empty ledger.
func NewLedger() Ledger {
	return Ledger{
		UTXOs:     NewUTXOSet(),
		positions: make(map[string]TxPosition),
	}
}

// Copy returns an independent copy of the ledger.
func (l Ledger) Copy() Ledger {
	positions := make(map[string]TxPosition, len(l.positions))
	for id, pos := range l.positions {
		positions[id] = pos
	}

	return Ledger{
		UTXOs:     l.UTXOs.Copy(),
		positions: positions,
	}
}

// Position returns where the transaction is recorded.
func (l Ledger) Position(txID string) (TxPosition, bool) {
	pos, exists := l.positions[txID]
	return pos, exists
}

// Equal reports whether both ledgers hold the same outputs and positions.
func (l Ledger) Equal(other Ledger) bool {
	if !l.UTXOs.Equal(other.UTXOs) {
		return false
	}

	if len(l.positions) != len(other.positions) {
		return false
	}

	for id, pos := range l.positions {
		if p, exists := other.positions[id]; !exists || p != pos {
			return false
		}
	}

	return true
}

// ApplyBlock folds the block's transactions into the ledger. The ledger is
// modified in place and may be partially updated on error, so callers apply
// to a copy. Signatures are not checked here, see VerifySignatures.
func (l Ledger) ApplyBlock(block Block, rules Rules) error {
	number := block.Header.Number

	for i, tx := range block.Transactions() {
		id := tx.ID()

		if _, exists := l.positions[id]; exists {
			return fmt.Errorf("%w: blk[%d] tx[%s] already in the chain", ErrMalformedTransaction, number, id)
		}

		if err := tx.ValidateStructure(); err != nil {
			return fmt.Errorf("blk[%d] tx[%s]: %w", number, id, err)
		}

		if tx.Kind == TxKindCoinbase && number > 0 {
			if err := validateCoinbase(tx, i, number, rules); err != nil {
				return err
			}
		}

		total, err := ResolveInputs(tx.SignedTx, l.UTXOs)
		if err != nil {
			return fmt.Errorf("blk[%d] tx[%s]: %w", number, id, err)
		}

		if err := tx.ValidateOutputs(total); err != nil {
			return fmt.Errorf("blk[%d] tx[%s]: %w", number, id, err)
		}

		if err := l.UTXOs.Apply(tx); err != nil {
			return fmt.Errorf("blk[%d] tx[%s]: %w", number, id, err)
		}

		l.positions[id] = TxPosition{BlockNumber: number, Index: i}
	}

	return nil
}

// validateCoinbase checks a mining reward is first in the block and pays
// exactly what the reward rule allows at this height.
func validateCoinbase(tx BlockTx, index int, number uint64, rules Rules) error {
	reward := rules.Reward(number)

	switch {
	case reward == 0:
		return fmt.Errorf("%w: blk[%d] coinbase not allowed", ErrMalformedTransaction, number)
	case index != 0:
		return fmt.Errorf("%w: blk[%d] coinbase at position %d", ErrMalformedTransaction, number, index)
	case tx.Value != reward:
		return fmt.Errorf("%w: blk[%d] coinbase pays %d, exp %d", ErrMalformedTransaction, number, tx.Value, reward)
	case tx.Nonce != number:
		return fmt.Errorf("%w: blk[%d] coinbase nonce %d", ErrMalformedTransaction, number, tx.Nonce)
	}

	return nil
}
