// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/ledger/business/web/errs"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ardanlabs/ledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of wallet facing endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", signedTx.ID(), "from", signedTx.From, "to", signedTx.To, "value", signedTx.Value, "inputs", len(signedTx.Inputs))

	tx, err := h.State.SubmitWalletTransaction(signedTx)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"tx_id"`
	}{
		Status: "transactions added to mempool",
		TxID:   tx.ID(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RequestMining mines a block from the mempool right away. Any search the
// worker has in flight is cancelled until this one is done.
func (h Handlers) RequestMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	done := h.State.Worker.SignalCancelMining()
	defer done()

	blk, err := h.State.MineNewBlock(ctx)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, toBlock(h.NS, blk), http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Balance returns the confirmed balance for the public key or account id.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	key := web.Param(r, "key")

	amount, err := h.State.QueryBalance(key)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	account, err := toAccount(key)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	bal := balance{
		Account:     account,
		Name:        h.NS.Lookup(account),
		Balance:     amount,
		LatestBlock: h.State.RetrieveLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
	}

	return web.Respond(ctx, w, bal, http.StatusOK)
}

// UTXOs returns the outputs the account can spend, taking the mempool
// into account.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account, err := toAccount(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	outs := h.State.QueryUTXOs(account)

	return web.Respond(ctx, w, toOutputs(h.NS, outs), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.RetrieveMempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = toTx(h.NS, tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// BlocksByNumber returns the blocks and their details for the range.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" {
		fromStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" {
		toStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	dbBlocks := h.State.QueryBlocksByNumber(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = toBlock(h.NS, blk)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// TxProof returns the merkle inclusion proof for a confirmed transaction.
func (h Handlers) TxProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proof, err := h.State.QueryTxProof(web.Param(r, "id"))
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := struct {
		state.TxProof
		Verified bool `json:"verified"`
	}{
		TxProof:  proof,
		Verified: proof.Verify(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// toAccount accepts a public key or an account id.
func toAccount(key string) (database.AccountID, error) {
	if account := database.AccountID(key); account.IsAccountID() {
		return account, nil
	}

	return database.PublicKeyStringToAccountID(key)
}
