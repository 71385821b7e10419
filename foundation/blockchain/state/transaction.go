package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
// The outputs are computed here and the transaction is shared with the
// known peers once it's admitted.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) (database.BlockTx, error) {
	tx, err := s.admitTransaction(signedTx)
	if err != nil {
		return database.BlockTx{}, err
	}

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return tx, nil
}

// SubmitNodeTransaction accepts a transaction shared by a peer. The outputs
// the peer computed are ignored and computed again.
func (s *State) SubmitNodeTransaction(tx database.BlockTx) error {
	if _, err := s.admitTransaction(tx.SignedTx); err != nil {
		return err
	}

	s.Worker.SignalStartMining()

	return nil
}

// =============================================================================

// admitTransaction checks the signature before taking the lock and then
// admits the transaction against the confirmed outputs. Holding the write
// lock means two spends of the same output can't both be admitted.
func (s *State) admitTransaction(signedTx database.SignedTx) (database.BlockTx, error) {
	if err := mempool.Validate(signedTx); err != nil {
		s.txRejected(err)
		return database.BlockTx{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := signedTx.ID()
	if pos, exists := s.db.TxPosition(id); exists {
		err := fmt.Errorf("%w: tx[%s] recorded in block %d", mempool.ErrAlreadyPending, id, pos.BlockNumber)
		s.txRejected(err)
		return database.BlockTx{}, err
	}

	tx, err := s.mempool.Admit(signedTx, s.db.UTXOs())
	if err != nil {
		s.txRejected(err)
		return database.BlockTx{}, err
	}

	prometheusTxAdmitted.Inc()
	prometheusMempoolSize.Set(float64(s.mempool.Count()))

	s.evHandler("state: admitTransaction: tx[%s] from[%s] to[%s] value[%d] outputs[%d]", id, tx.From, tx.To, tx.Value, len(tx.Outputs))

	return tx, nil
}

// txRejected records the reason a transaction was turned away.
func (s *State) txRejected(err error) {
	s.evHandler("state: admitTransaction: WARNING: %s", err)
	prometheusTxRejected.WithLabelValues(reason(err)).Inc()
}

// reason maps an error to a short label for the metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, database.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, database.ErrUTXONotFound):
		return "utxo_not_found"
	case errors.Is(err, database.ErrOwnershipMismatch):
		return "ownership_mismatch"
	case errors.Is(err, database.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, database.ErrMalformedTransaction):
		return "malformed"
	case errors.Is(err, mempool.ErrAlreadyPending):
		return "already_pending"
	case errors.Is(err, database.ErrChainForked):
		return "chain_forked"
	case errors.Is(err, database.ErrBadLinkage):
		return "bad_linkage"
	case errors.Is(err, database.ErrBadProof):
		return "bad_proof"
	case errors.Is(err, database.ErrBadMerkleRoot):
		return "bad_merkle_root"
	case errors.Is(err, ErrBlockKnown):
		return "known"
	}

	return "other"
}
