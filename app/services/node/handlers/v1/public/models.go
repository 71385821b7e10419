package public

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/nameservice"
)

type balance struct {
	Account     database.AccountID `json:"account"`
	Name        string             `json:"name"`
	Balance     uint64             `json:"balance"`
	LatestBlock string             `json:"latest_block"`
	Uncommitted int                `json:"uncommitted"`
}

type output struct {
	TxID   string             `json:"tx_id"`
	Index  uint32             `json:"index"`
	Owner  database.AccountID `json:"owner"`
	Name   string             `json:"name"`
	Amount uint64             `json:"amount"`
}

type tx struct {
	ID          string               `json:"id"`
	Kind        string               `json:"kind"`
	FromAccount database.AccountID   `json:"from"`
	FromName    string               `json:"from_name"`
	To          database.AccountID   `json:"to"`
	ToName      string               `json:"to_name"`
	Nonce       uint64               `json:"nonce"`
	Value       uint64               `json:"value"`
	Data        string               `json:"data,omitempty"`
	TimeStamp   uint64               `json:"timestamp"`
	Inputs      []database.OutputRef `json:"inputs"`
	Outputs     []output             `json:"outputs"`
	Sig         string               `json:"sig,omitempty"`
}

type block struct {
	Hash          string `json:"hash"`
	Number        uint64 `json:"number"`
	PrevBlockHash string `json:"prev_block_hash"`
	TimeStamp     uint64 `json:"timestamp"`
	Difficulty    uint16 `json:"difficulty"`
	MerkleRoot    string `json:"merkle_root"`
	Nonce         uint64 `json:"nonce"`
	Transactions  []tx   `json:"txs"`
}

// =============================================================================

func toOutputs(ns *nameservice.NameService, outs []database.TxOutput) []output {
	views := make([]output, len(outs))
	for i, out := range outs {
		views[i] = output{
			TxID:   out.ParentTxID,
			Index:  out.Index,
			Owner:  out.Owner,
			Name:   ns.Lookup(out.Owner),
			Amount: out.Amount,
		}
	}
	return views
}

func toTx(ns *nameservice.NameService, blockTx database.BlockTx) tx {
	var from database.AccountID
	if blockTx.Kind != database.TxKindCoinbase {
		from, _ = blockTx.FromAccount()
	}

	return tx{
		ID:          blockTx.ID(),
		Kind:        blockTx.Kind.String(),
		FromAccount: from,
		FromName:    ns.Lookup(from),
		To:          blockTx.To,
		ToName:      ns.Lookup(blockTx.To),
		Nonce:       blockTx.Nonce,
		Value:       blockTx.Value,
		Data:        blockTx.Data,
		TimeStamp:   blockTx.TimeStamp,
		Inputs:      blockTx.Inputs,
		Outputs:     toOutputs(ns, blockTx.Outputs),
		Sig:         blockTx.Signature,
	}
}

func toBlock(ns *nameservice.NameService, blk database.Block) block {
	trans := blk.Transactions()

	txs := make([]tx, len(trans))
	for i, blockTx := range trans {
		txs[i] = toTx(ns, blockTx)
	}

	return block{
		Hash:          blk.Hash(),
		Number:        blk.Header.Number,
		PrevBlockHash: blk.Header.PrevBlockHash,
		TimeStamp:     blk.Header.TimeStamp,
		Difficulty:    blk.Header.Difficulty,
		MerkleRoot:    blk.Header.MerkleRoot,
		Nonce:         blk.Header.Nonce,
		Transactions:  txs,
	}
}
