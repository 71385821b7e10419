package state

import (
	"context"
	"fmt"
)

// VerifyConsistency folds the chain from the genesis block and compares the
// result with the live unspent outputs and tx positions. On a mismatch the
// in memory state is rebuilt from storage and ErrStateCorrupted is returned.
func (s *State) VerifyConsistency(ctx context.Context) error {
	s.mu.RLock()
	folded, err := s.db.Replay()
	live := s.db.Ledger()
	s.mu.RUnlock()

	if err == nil && folded.Equal(live) {
		return nil
	}

	prometheusStateCorrupted.Inc()

	cause := "live ledger differs from the fold"
	if err != nil {
		cause = err.Error()
	}
	s.evHandler("state: VerifyConsistency: ERROR: %s: rebuilding", cause)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Rebuild(ctx); err != nil {
		return fmt.Errorf("%w: %s: rebuild failed: %w", ErrStateCorrupted, cause, err)
	}

	s.rebuildMempool(s.mempool.Copy())
	prometheusChainHeight.Set(float64(s.db.LatestBlock().Header.Number))

	return fmt.Errorf("%w: %s: rebuilt from storage", ErrStateCorrupted, cause)
}
