package worker

import (
	"context"
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// Sync updates the peer list, mempool and blocks.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this nodes list.
		w.addNewPeers(peerStatus.KnownPeers)

		// If this peer has blocks we don't have, we need to add them.
		w.syncBlocks(pr, peerStatus)

		// Retrieve the mempool from the peer.
		pool, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: retrievePeerMempool: %s: ERROR: %s", pr.Host, err)
			continue
		}

		for _, tx := range pool {
			err := w.state.SubmitNodeTransaction(tx)
			switch {
			case err == nil:
				w.evHandler("worker: sync: retrievePeerMempool: %s: Add Tx: %s", pr.Host, tx.ID())
			case !errors.Is(err, mempool.ErrAlreadyPending):
				w.evHandler("worker: sync: retrievePeerMempool: %s: WARNING: %s", pr.Host, err)
			}
		}
	}
}

// syncBlocks pulls the peer's blocks if its chain carries more work.
func (w *Worker) syncBlocks(pr peer.Peer, peerStatus peer.PeerStatus) {
	peerWork, err := peerStatus.ChainWork()
	if err != nil {
		w.evHandler("worker: sync: syncBlocks: %s: ERROR: %s", pr.Host, err)
		return
	}

	if peerWork.Cmp(w.state.RetrieveWork()) <= 0 {
		return
	}

	w.evHandler("worker: sync: syncBlocks: %s: latestBlockNumber[%d]: work[%s]", pr.Host, peerStatus.LatestBlockNumber, peerStatus.Work)

	if err := w.state.NetRequestPeerBlocks(context.Background(), pr); err != nil {
		w.evHandler("worker: sync: syncBlocks: %s: ERROR %s", pr.Host, err)
	}
}
