// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// Set of errors the node can report beyond the ones raised while
// validating transactions and blocks.
var (
	ErrShortOrEqualChain = errors.New("chain does not carry more work")
	ErrNoTransactions    = errors.New("no transactions in mempool")
	ErrStaleTip          = errors.New("tip moved while mining")
	ErrBlockKnown        = errors.New("block already known")
	ErrStateCorrupted    = errors.New("state corrupted")
	ErrSnapshotMismatch  = errors.New("snapshot outputs don't match the chain")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	SignalSync()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(blockTx database.BlockTx)
	SignalShareBlock(block database.Block)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	BeneficiaryID  database.AccountID
	Host           string
	Storage        database.Storage
	Genesis        genesis.Genesis
	Rules          database.Rules
	KnownPeers     *peer.PeerSet
	OrphanTTL      time.Duration
	OrphanCapacity uint64
	EvHandler      EventHandler
}

// State manages the blockchain database. The lock guards the chain, the
// ledger folded from it and the mempool as one unit.
type State struct {
	mu sync.RWMutex

	beneficiaryID database.AccountID
	host          string
	evHandler     EventHandler

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database
	orphans    *orphanPool

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {
	initPrometheusMetrics()

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.KnownPeers == nil {
		cfg.KnownPeers = peer.NewPeerSet()
	}

	// Access the storage for the blockchain. Every stored block is validated
	// again on the way in.
	db, err := database.New(cfg.Genesis, cfg.Rules, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		beneficiaryID: cfg.BeneficiaryID,
		host:          cfg.Host,
		evHandler:     ev,

		knownPeers: cfg.KnownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool.New(),
		db:         db,
		orphans:    newOrphanPool(cfg.OrphanTTL, cfg.OrphanCapacity),

		Worker: nopWorker{},
	}

	prometheusChainHeight.Set(float64(db.LatestBlock().Header.Number))

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database file is properly closed.
	defer func() {
		s.orphans.purge()
		s.db.Close()
	}()

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	return nil
}

// Truncate resets the chain both on disk and in memory back to the
// genesis block.
func (s *State) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mempool.Truncate()
	s.orphans.purge()

	if err := s.db.Reset(); err != nil {
		return err
	}

	prometheusChainHeight.Set(0)
	prometheusMempoolSize.Set(0)

	return nil
}

// =============================================================================

// nopWorker is used until worker.Run assigns a real worker.
type nopWorker struct{}

func (nopWorker) Shutdown() {}
func (nopWorker) SignalSync() {}
func (nopWorker) SignalStartMining() {}
func (nopWorker) SignalCancelMining() func() { return func() {} }
func (nopWorker) SignalShareTx(database.BlockTx) {}
func (nopWorker) SignalShareBlock(database.Block) {}
