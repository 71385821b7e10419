package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// BlockStatus reports what happened to a block proposed by a peer.
type BlockStatus string

// Set of statuses a proposed block can end in.
const (
	BlockAccepted BlockStatus = "accepted"
	BlockBuffered BlockStatus = "buffered"
)

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. The tip and transactions are captured under a
// read lock and the search runs without holding the lock.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	s.mu.RLock()

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		s.mu.RUnlock()
		return database.Block{}, ErrNoTransactions
	}

	prevBlock := s.db.LatestBlock()
	difficulty := s.db.NextDifficulty()
	reward := s.db.NextReward()

	// The coinbase doesn't count against the transactions per block.
	var trans []database.BlockTx
	if reward > 0 && s.beneficiaryID != "" {
		coinbase, err := newCoinbase(prevBlock.Header.Number+1, s.beneficiaryID, reward)
		if err != nil {
			s.mu.RUnlock()
			return database.Block{}, err
		}
		trans = append(trans, coinbase)
	}

	// Pick the best transactions from the mempool.
	trans = append(trans, s.mempool.PickBest(int(s.genesis.TransPerBlock))...)

	s.mu.RUnlock()

	s.evHandler("state: MineNewBlock: MINING: perform POW: difficulty[%d] trans[%d]", difficulty, len(trans))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, database.POWArgs{
		PrevBlock:  prevBlock,
		Difficulty: difficulty,
		Trans:      trans,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	if err := s.appendMinedBlock(block); err != nil {
		return database.Block{}, err
	}

	prometheusBlocksMined.Inc()

	s.Worker.SignalShareBlock(block)

	return block, nil
}

// appendMinedBlock adds the block if the tip didn't move during the search.
func (s *State) appendMinedBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if latest := s.db.LatestBlock(); latest.Hash() != block.Header.PrevBlockHash {
		return fmt.Errorf("%w: mined on blk[%d] latest is blk[%d]", ErrStaleTip, block.Header.Number-1, latest.Header.Number)
	}

	return s.validateUpdateDatabase(block)
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain. A block whose
// parent isn't known is buffered until the parent arrives. A block building
// on a known parent that isn't the tip means the chains forked and the whole
// peer chain has to be looked at.
func (s *State) ProcessProposedBlock(blockData database.BlockData) (BlockStatus, error) {
	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", blockData.Header.PrevBlockHash, blockData.Hash, len(blockData.Trans))
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]", blockData.Hash)

	status, err := s.processProposedBlock(blockData)
	if err != nil {
		s.evHandler("state: ProcessProposedBlock: WARNING: %s", err)
		prometheusBlocksRejected.WithLabelValues(reason(err)).Inc()
		return "", err
	}

	if status == BlockAccepted {
		prometheusBlocksAccepted.Inc()

		// If the runMiningOperation function is being executed it needs to stop
		// immediately. The G executing runMiningOperation will not return from the
		// function until done is called. That allows this function to complete
		// its state changes before a new mining operation takes place.
		done := s.Worker.SignalCancelMining()
		defer func() {
			s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
			done()
		}()
	}

	return status, nil
}

func (s *State) processProposedBlock(blockData database.BlockData) (BlockStatus, error) {

	// The header has to hash to the carried hash and the proof and merkle
	// root must hold before anything else is looked at.
	block, err := database.ToBlock(blockData)
	if err != nil {
		return "", err
	}

	if err := block.CheckProof(); err != nil {
		return "", err
	}

	// A cheap proof below what any chain here could require is rejected
	// before it can take a place in the orphan buffer.
	if floor := s.difficultyFloor(); block.Header.Difficulty < floor {
		return "", fmt.Errorf("%w: blk[%d] difficulty %d is below %d", database.ErrBadProof, block.Header.Number, block.Header.Difficulty, floor)
	}

	hash := block.Hash()
	if s.isKnown(hash) {
		return "", fmt.Errorf("%w: blk[%d] %s", ErrBlockKnown, block.Header.Number, hash)
	}

	// Signatures are checked before the lock is taken.
	if err := database.VerifySignatures(context.Background(), block); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.db.LatestBlock()

	switch {
	case block.Header.PrevBlockHash == latest.Hash():
		if err := s.validateUpdateDatabase(block); err != nil {
			return "", err
		}

		s.connectOrphans(block)

		return BlockAccepted, nil

	default:
		if parent, exists := s.db.BlockByHash(block.Header.PrevBlockHash); exists {
			if err := s.checkForkHeader(block, parent); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: blk[%d] builds on blk[%d], latest is blk[%d]", database.ErrChainForked, block.Header.Number, block.Header.Number-1, latest.Header.Number)
		}

		s.evHandler("state: ProcessProposedBlock: buffering orphan blk[%d]: %s", block.Header.Number, hash)
		s.orphans.add(block)

		return BlockBuffered, nil
	}
}

// difficultyFloor is the lowest difficulty a proposed block can carry: the
// lesser of the genesis difficulty and what the tip requires next.
func (s *State) difficultyFloor() uint16 {
	floor := s.genesis.Difficulty
	if next := s.db.NextDifficulty(); next < floor {
		floor = next
	}

	return floor
}

// checkForkHeader makes sure a block building on a known parent that isn't
// the tip is a proper child of that parent before a resync is started.
func (s *State) checkForkHeader(block database.Block, parent database.Block) error {
	if block.Header.Number != parent.Header.Number+1 {
		return fmt.Errorf("%w: blk[%d] can't follow blk[%d]", database.ErrBadLinkage, block.Header.Number, parent.Header.Number)
	}

	if exp := s.db.Rules().Difficulty(block.Header.Number, parent.Header); block.Header.Difficulty != exp {
		return fmt.Errorf("%w: blk[%d] difficulty %d, exp %d", database.ErrBadProof, block.Header.Number, block.Header.Difficulty, exp)
	}

	return nil
}

// isKnown reports if the block is already in the chain or buffered.
func (s *State) isKnown(hash string) bool {
	if s.orphans.has(hash) {
		return true
	}

	_, exists := s.db.BlockByHash(hash)
	return exists
}

// connectOrphans applies any buffered blocks that now extend the tip. The
// caller must hold the write lock.
func (s *State) connectOrphans(parent database.Block) {
	for {
		children := s.orphans.children(parent.Hash())
		if len(children) == 0 {
			return
		}

		var connected bool
		for _, child := range children {
			s.orphans.remove(child.Hash())

			if connected {
				continue
			}

			if err := s.validateUpdateDatabase(child); err != nil {
				s.evHandler("state: connectOrphans: WARNING: blk[%d]: %s", child.Header.Number, err)
				continue
			}

			s.evHandler("state: connectOrphans: connected blk[%d]", child.Header.Number)
			parent = child
			connected = true
		}

		if !connected {
			return
		}
	}
}

// =============================================================================

// validateUpdateDatabase takes the block and validates the block against the
// consensus rules. If the block passes, then the state of the node is updated
// including adding the block to disk. The caller must hold the write lock.
func (s *State) validateUpdateDatabase(block database.Block) error {
	s.evHandler("state: validateUpdateDatabase: validate block and write to disk")

	// The database validates the block against the tip on a copy of the
	// ledger and only swaps it in once the block is on disk.
	if err := s.db.ApplyBlock(block); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: remove mined and conflicting transactions from mempool")

	s.rebuildMempool(s.mempool.Copy())

	prometheusChainHeight.Set(float64(block.Header.Number))

	// Send an event about this new block.
	s.blockEvent(block)

	return nil
}

// rebuildMempool admits the candidates again against the confirmed outputs.
// The caller must hold the write lock.
func (s *State) rebuildMempool(candidates []database.BlockTx) {
	inChain := func(id string) bool {
		_, exists := s.db.TxPosition(id)
		return exists
	}

	for _, tx := range s.mempool.Rebuild(s.db.UTXOs(), candidates, inChain) {
		s.evHandler("state: rebuildMempool: dropped tx[%s]", tx.ID())
	}

	prometheusMempoolSize.Set(float64(s.mempool.Count()))
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Transactions())
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}

// newCoinbase constructs the transaction paying the mining reward.
func newCoinbase(height uint64, beneficiary database.AccountID, reward uint64) (database.BlockTx, error) {
	signed := database.SignedTx{Tx: database.NewCoinbaseTx(height, beneficiary, reward)}

	outputs, err := database.BuildOutputs(signed, 0)
	if err != nil {
		return database.BlockTx{}, err
	}

	return database.NewBlockTx(signed, outputs), nil
}
