package state

import (
	"math/big"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []database.BlockTx {
	return s.mempool.Copy()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveOrphanCount returns the number of blocks waiting for their parent.
func (s *State) RetrieveOrphanCount() int {
	return s.orphans.len()
}

// RetrievePeerStatus returns the status this node reports to its peers.
func (s *State) RetrievePeerStatus() peer.PeerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.db.LatestBlock()

	return peer.PeerStatus{
		LatestBlockHash:   latest.Hash(),
		LatestBlockNumber: latest.Header.Number,
		Work:              s.db.Work().String(),
		MempoolLength:     s.mempool.Count(),
		KnownPeers:        s.RetrieveKnownPeers(),
	}
}

// =============================================================================

// AddKnownPeer provides the ability to add a new peer to
// the known peer list.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	if peer.Match(s.host) {
		return false
	}

	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer provides the ability to remove a peer from
// the known peer list.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}

// RetrieveWork returns the cumulative work of the chain.
func (s *State) RetrieveWork() *big.Int {
	return s.db.Work()
}
