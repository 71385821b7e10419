// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// ErrHelp provides context that help was given.
var ErrHelp = errors.New("provided help")

// Balances writes the confirmed balance of every account holding outputs.
// A non empty account limits the output to that account.
func Balances(w io.Writer, db *database.Database, account string) error {
	fmt.Fprintf(w, "LatestBlockHash: %s\n\n", db.LatestBlock().Hash())

	if account != "" {
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Account: %s  Balance: %d\n", accountID, db.BalanceOf(accountID))
		return nil
	}

	bals := make(map[database.AccountID]uint64)
	for _, out := range db.UTXOs().Values() {
		bals[out.Owner] += out.Amount
	}

	accounts := make([]database.AccountID, 0, len(bals))
	for accountID := range bals {
		accounts = append(accounts, accountID)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	for _, accountID := range accounts {
		fmt.Fprintf(w, "Account: %s  Balance: %d\n", accountID, bals[accountID])
	}

	return nil
}

// Transactions writes the confirmed transactions in chain order. A non
// empty account limits the output to transactions sent or received by it.
func Transactions(w io.Writer, db *database.Database, account string) error {
	fmt.Fprintf(w, "LatestBlockHash: %s\n\n", db.LatestBlock().Hash())

	var accountID database.AccountID
	if account != "" {
		var err error
		if accountID, err = database.ToAccountID(account); err != nil {
			return err
		}
	}

	blocks := append([]database.Block{db.GenesisBlock()}, db.Blocks()...)
	for _, block := range blocks {
		for _, tx := range block.Transactions() {
			var from database.AccountID
			if tx.Kind != database.TxKindCoinbase {
				from, _ = tx.FromAccount()
			}

			if accountID != "" && from != accountID && tx.To != accountID {
				continue
			}

			fmt.Fprintf(w, "Block: %d  ID: %s  Kind: %s  From: %s  To: %s  Value: %d\n",
				block.Header.Number, tx.ID(), tx.Kind, from, tx.To, tx.Value)
		}
	}

	return nil
}

// Audit replays the stored chain from genesis and compares the result with
// the ledger the database loaded.
func Audit(w io.Writer, db *database.Database) error {
	replayed, err := db.Replay()
	if err != nil {
		return err
	}

	if !replayed.Equal(db.Ledger()) {
		return errors.New("replayed ledger doesn't match the loaded ledger")
	}

	fmt.Fprintf(w, "Blocks: %d  UTXOs: %d  UTXO Hash: %s\n", db.LatestBlock().Header.Number, replayed.UTXOs.Len(), replayed.UTXOs.Hash())

	return nil
}
