package state

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/merkle"
)

// QueryLastest represents to query the latest block in the chain.
const QueryLastest = ^uint64(0) >> 1

// TxProof proves a transaction is part of a block in the chain.
type TxProof struct {
	TxID        string   `json:"tx_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	MerkleRoot  string   `json:"merkle_root"`
	Proof       []string `json:"proof"`
	Order       []int64  `json:"order"`
}

// Verify checks the proof leads from the transaction id to the merkle root.
func (p TxProof) Verify() bool {
	return merkle.VerifyProof(p.TxID, p.Proof, p.Order, p.MerkleRoot)
}

// =============================================================================

// QueryBalance returns the confirmed balance of the account owned by the
// public key. An account id is accepted as well.
func (s *State) QueryBalance(key string) (uint64, error) {
	accountID, err := toAccountID(key)
	if err != nil {
		return 0, err
	}

	return s.QueryBalanceByAccount(accountID), nil
}

// QueryBalanceByAccount returns the confirmed balance of the account.
func (s *State) QueryBalanceByAccount(accountID database.AccountID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.BalanceOf(accountID)
}

// QueryUTXOs returns the outputs the account can spend right now. Outputs
// already spent by a pending transaction are left out and outputs created by
// pending transactions are included.
func (s *State) QueryUTXOs(accountID database.AccountID) []database.TxOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var outs []database.TxOutput
	for _, out := range s.db.OutputsOf(accountID) {
		if _, spent := s.mempool.SpentBy(out.Ref()); !spent {
			outs = append(outs, out)
		}
	}

	for _, tx := range s.mempool.Copy() {
		for _, out := range tx.Outputs {
			if out.Owner != accountID {
				continue
			}
			if _, spent := s.mempool.SpentBy(out.Ref()); !spent {
				outs = append(outs, out)
			}
		}
	}

	return outs
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers.
// Block zero is the genesis block.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	latest := s.db.LatestBlock().Header.Number

	if from == QueryLastest {
		from = latest
		to = from
	}
	if to == QueryLastest || to > latest {
		to = latest
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: getblock: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryTxProof returns the merkle inclusion proof for the transaction.
func (s *State) QueryTxProof(txID string) (TxProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.db.TxPosition(txID)
	if !exists {
		return TxProof{}, fmt.Errorf("tx[%s]: %w", txID, database.ErrNotFound)
	}

	block, err := s.db.GetBlock(pos.BlockNumber)
	if err != nil {
		return TxProof{}, err
	}

	trans := block.Transactions()
	if pos.Index >= len(trans) {
		return TxProof{}, fmt.Errorf("%w: tx[%s] position %d outside blk[%d]", ErrStateCorrupted, txID, pos.Index, pos.BlockNumber)
	}

	proof, order, err := block.MerkleTree.Proof(trans[pos.Index])
	if err != nil {
		return TxProof{}, err
	}

	txProof := TxProof{
		TxID:        txID,
		BlockNumber: pos.BlockNumber,
		BlockHash:   block.Hash(),
		MerkleRoot:  block.Header.MerkleRoot,
		Proof:       proof,
		Order:       order,
	}

	return txProof, nil
}

// =============================================================================

// toAccountID accepts a public key or an account id.
func toAccountID(key string) (database.AccountID, error) {
	if accountID := database.AccountID(key); accountID.IsAccountID() {
		return accountID, nil
	}

	return database.PublicKeyStringToAccountID(key)
}
