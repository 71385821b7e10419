package state

import (
	"context"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
)

// Snapshot is the export of a node's chain. The genesis block isn't part of
// it since every node derives it from the genesis file.
type Snapshot struct {
	Blocks  []database.BlockData `json:"blocks"`
	UTXOs   []database.TxOutput  `json:"utxos"`
	Mempool []database.BlockTx   `json:"mempool"`
}

// Snapshot exports the chain, the unspent outputs and the mempool as one
// consistent view.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := s.db.Blocks()
	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return Snapshot{
		Blocks:  blockData,
		UTXOs:   s.db.UTXOs().Values(),
		Mempool: s.mempool.Copy(),
	}
}

// ReplaceChain adopts the peer chain when it carries strictly more work than
// the local chain and validates from genesis. The unspent outputs, the tx
// positions and the mempool are rebuilt from the new chain. Transactions of
// the abandoned blocks go back through mempool admission.
func (s *State) ReplaceChain(ctx context.Context, blockData []database.BlockData) error {
	s.evHandler("state: ReplaceChain: started: blocks[%d]", len(blockData))
	defer s.evHandler("state: ReplaceChain: completed")

	blocks, ledger, err := s.validatePeerChain(ctx, blockData)
	if err != nil {
		return err
	}

	return s.replaceChain(blocks, ledger, nil)
}

// ImportSnapshot applies fork choice to the exported chain. The exported
// unspent outputs must be exactly what the chain folds to. Exported mempool
// transactions are admitted after the chain is swapped in.
func (s *State) ImportSnapshot(ctx context.Context, snapshot Snapshot) error {
	s.evHandler("state: ImportSnapshot: started: blocks[%d] utxos[%d] mempool[%d]", len(snapshot.Blocks), len(snapshot.UTXOs), len(snapshot.Mempool))
	defer s.evHandler("state: ImportSnapshot: completed")

	blocks, ledger, err := s.validatePeerChain(ctx, snapshot.Blocks)
	if err != nil {
		return err
	}

	exported, err := database.NewUTXOSetFromOutputs(snapshot.UTXOs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotMismatch, err)
	}

	if !exported.Equal(ledger.UTXOs) {
		return fmt.Errorf("%w: exported %s, folded %s", ErrSnapshotMismatch, exported.Hash(), ledger.UTXOs.Hash())
	}

	// Peer mempool transactions still need their signatures checked.
	var pending []database.BlockTx
	for _, tx := range snapshot.Mempool {
		if err := mempool.Validate(tx.SignedTx); err != nil {
			s.evHandler("state: ImportSnapshot: WARNING: skipping tx[%s]: %s", tx.ID(), err)
			continue
		}
		pending = append(pending, tx)
	}

	return s.replaceChain(blocks, ledger, pending)
}

// =============================================================================

// validatePeerChain converts the blocks and validates them from genesis
// without holding the lock. The work is checked first since it's cheap.
func (s *State) validatePeerChain(ctx context.Context, blockData []database.BlockData) ([]database.Block, database.Ledger, error) {
	blocks := make([]database.Block, len(blockData))
	for i, bd := range blockData {
		block, err := database.ToBlock(bd)
		if err != nil {
			return nil, database.Ledger{}, err
		}
		blocks[i] = block
	}

	work := database.ChainWork(blocks)
	if local := s.db.Work(); work.Cmp(local) <= 0 {
		return nil, database.Ledger{}, fmt.Errorf("%w: peer work %s, local work %s", ErrShortOrEqualChain, work, local)
	}

	ledger, err := database.ValidateChain(ctx, s.db.GenesisBlock(), blocks, s.db.Rules(), s.evHandler)
	if err != nil {
		return nil, database.Ledger{}, err
	}

	return blocks, ledger, nil
}

// replaceChain swaps the validated chain in. The work is compared again
// under the lock since the local chain may have grown during validation.
func (s *State) replaceChain(blocks []database.Block, ledger database.Ledger, pending []database.BlockTx) error {

	// Stop any mining in progress for the old tip. The mining G won't start
	// over until done is called.
	done := s.Worker.SignalCancelMining()
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	work := database.ChainWork(blocks)
	if local := s.db.Work(); work.Cmp(local) <= 0 {
		return fmt.Errorf("%w: peer work %s, local work %s", ErrShortOrEqualChain, work, local)
	}

	// Transactions of the blocks being abandoned get a second chance.
	var candidates []database.BlockTx
	for _, block := range s.db.Blocks() {
		candidates = append(candidates, block.Transactions()...)
	}
	candidates = append(candidates, s.mempool.Copy()...)
	candidates = append(candidates, pending...)

	if err := s.db.Replace(blocks, ledger); err != nil {
		return err
	}

	s.rebuildMempool(candidates)

	latest := s.db.LatestBlock()
	s.connectOrphans(latest)

	prometheusChainReplaced.Inc()
	prometheusChainHeight.Set(float64(s.db.LatestBlock().Header.Number))

	s.evHandler("state: replaceChain: new latest blk[%d]: %s", latest.Header.Number, latest.Hash())

	return nil
}
