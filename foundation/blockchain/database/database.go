// Package database handles all the lower level support for maintaining the
// blockchain in storage and the in memory ledger derived from it.
package database

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
)

// ErrNotFound is returned when a block or transaction isn't in the chain.
var ErrNotFound = errors.New("not found")

// Database manages the chain of blocks and the ledger folded from it.
type Database struct {
	mu sync.RWMutex

	genesis      genesis.Genesis
	genesisBlock Block
	rules        Rules
	blocks       []Block // Index 0 is the genesis block.
	ledger       Ledger
	work         *big.Int

	storage   Storage
	evHandler func(v string, args ...any)
}

// New constructs a new database and replays the blocks found in storage on
// top of the genesis block. Every stored block is validated again.
func New(gen genesis.Genesis, rules Rules, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	genesisBlock, err := GenesisBlock(gen)
	if err != nil {
		return nil, err
	}

	db := Database{
		genesis:      gen,
		genesisBlock: genesisBlock,
		rules:        rules.withDefaults(gen),
		storage:      storage,
		evHandler:    evHandler,
	}

	if err := db.load(context.Background()); err != nil {
		return nil, err
	}

	return &db, nil
}

// load reads the blocks in storage and validates them into a ledger.
func (db *Database) load(ctx context.Context) error {
	stored, err := readStorage(db.storage)
	if err != nil {
		return fmt.Errorf("reading storage: %w", err)
	}

	ledger, err := ValidateChain(ctx, db.genesisBlock, stored, db.rules, db.evHandler)
	if err != nil {
		return fmt.Errorf("validating storage: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.blocks = append([]Block{db.genesisBlock}, stored...)
	db.ledger = ledger
	db.work = ChainWork(db.blocks[1:])

	return nil
}

// Close closes the open blocks database.
func (db *Database) Close() {
	db.storage.Close()
}

// Genesis returns the genesis information.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// GenesisBlock returns block zero.
func (db *Database) GenesisBlock() Block {
	return db.genesisBlock
}

// Rules returns the rules the chain is validated with.
func (db *Database) Rules() Rules {
	return db.rules
}

// =============================================================================

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.blocks[len(db.blocks)-1]
}

// Work returns the cumulative work of the chain above genesis.
func (db *Database) Work() *big.Int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return new(big.Int).Set(db.work)
}

// NextDifficulty returns the difficulty the next block must be mined at.
func (db *Database) NextDifficulty() uint16 {
	latest := db.LatestBlock()
	return db.rules.Difficulty(latest.Header.Number+1, latest.Header)
}

// NextReward returns the mining reward for the next block.
func (db *Database) NextReward() uint64 {
	latest := db.LatestBlock()
	return db.rules.Reward(latest.Header.Number + 1)
}

// Blocks returns the blocks above genesis.
func (db *Database) Blocks() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blocks := make([]Block, len(db.blocks)-1)
	copy(blocks, db.blocks[1:])

	return blocks
}

// GetBlock returns the block by number. Block zero is the genesis block.
func (db *Database) GetBlock(num uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if num >= uint64(len(db.blocks)) {
		return Block{}, fmt.Errorf("block %d: %w", num, ErrNotFound)
	}

	return db.blocks[num], nil
}

// BlockByHash returns the block with the specified hash.
func (db *Database) BlockByHash(hash string) (Block, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for i := len(db.blocks) - 1; i >= 0; i-- {
		if db.blocks[i].Hash() == hash {
			return db.blocks[i], true
		}
	}

	return Block{}, false
}

// =============================================================================

// UTXOs returns the live unspent output set. It must only be read while
// the caller holds the lock guarding writes to the database.
func (db *Database) UTXOs() *UTXOSet {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.UTXOs
}

// Ledger returns a copy of the current ledger.
func (db *Database) Ledger() Ledger {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.Copy()
}

// BalanceOf returns the sum of the unspent outputs owned by the account.
func (db *Database) BalanceOf(account AccountID) uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.UTXOs.BalanceOf(account)
}

// OutputsOf returns the unspent outputs owned by the account.
func (db *Database) OutputsOf(account AccountID) []TxOutput {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.UTXOs.OutputsOf(account)
}

// TxPosition returns where the transaction is recorded in the chain.
func (db *Database) TxPosition(txID string) (TxPosition, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.Position(txID)
}

// =============================================================================

// ValidateNext checks the block extends the tip and returns the ledger the
// chain would have with it applied. Nothing is changed. Signatures must have
// been verified already.
func (db *Database) ValidateNext(block Block) (Ledger, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	latest := db.blocks[len(db.blocks)-1]
	difficulty := db.rules.Difficulty(block.Header.Number, latest.Header)

	if err := block.ValidateBlock(latest, difficulty, db.evHandler); err != nil {
		return Ledger{}, err
	}

	ledger := db.ledger.Copy()
	if err := ledger.ApplyBlock(block, db.rules); err != nil {
		return Ledger{}, err
	}

	return ledger, nil
}

// ApplyBlock validates the block against the tip, writes it to storage and
// makes it the new tip. On any failure the database is left untouched.
// Signatures must have been verified already.
func (db *Database) ApplyBlock(block Block) error {
	ledger, err := db.ValidateNext(block)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if latest := db.blocks[len(db.blocks)-1]; block.Header.PrevBlockHash != latest.Hash() {
		return fmt.Errorf("%w: tip moved during validation", ErrBadLinkage)
	}

	if err := db.storage.Write(NewBlockData(block)); err != nil {
		return fmt.Errorf("writing block %d: %w", block.Header.Number, err)
	}

	db.blocks = append(db.blocks, block)
	db.ledger = ledger
	db.work = new(big.Int).Add(db.work, Work(block.Header.Difficulty))

	return nil
}

// Replace swaps the chain for the specified blocks and the ledger they were
// validated to. Storage is rewritten to match. If storage can't take the new
// chain the current chain is written back, so storage and memory still agree.
func (db *Database) Replace(blocks []Block, ledger Ledger) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.rewriteStorage(blocks); err != nil {
		if rerr := db.rewriteStorage(db.blocks[1:]); rerr != nil {
			return errors.Join(err, fmt.Errorf("restoring storage: %w", rerr))
		}
		return err
	}

	db.blocks = append([]Block{db.genesisBlock}, blocks...)
	db.ledger = ledger
	db.work = ChainWork(blocks)

	return nil
}

// rewriteStorage resets storage and writes the blocks in order.
func (db *Database) rewriteStorage(blocks []Block) error {
	if err := db.storage.Reset(); err != nil {
		return fmt.Errorf("resetting storage: %w", err)
	}

	for _, block := range blocks {
		if err := db.storage.Write(NewBlockData(block)); err != nil {
			return fmt.Errorf("writing block %d: %w", block.Header.Number, err)
		}
	}

	return nil
}

// Rebuild throws away the in memory state and reloads it from storage.
func (db *Database) Rebuild(ctx context.Context) error {
	return db.load(ctx)
}

// Replay folds the in memory chain from the genesis block into a new ledger.
func (db *Database) Replay() (Ledger, error) {
	db.mu.RLock()
	blocks := make([]Block, len(db.blocks))
	copy(blocks, db.blocks)
	db.mu.RUnlock()

	ledger := NewLedger()
	for _, block := range blocks {
		if err := ledger.ApplyBlock(block, db.rules); err != nil {
			return Ledger{}, err
		}
	}

	return ledger, nil
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}

	ledger := NewLedger()
	if err := ledger.ApplyBlock(db.genesisBlock, db.rules); err != nil {
		return err
	}

	db.blocks = []Block{db.genesisBlock}
	db.ledger = ledger
	db.work = new(big.Int)

	return nil
}
