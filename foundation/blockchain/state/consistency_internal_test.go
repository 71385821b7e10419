package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ethereum/go-ethereum/crypto"
)

func Test_VerifyConsistency(t *testing.T) {
	const (
		success = "✓"
		failed  = "✗"
	)

	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("Should be able to load the key: %v", err)
	}
	acct := database.PublicKeyToAccountID(pk.PublicKey)

	storage, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to open storage: %v", err)
	}

	st, err := New(Config{
		Host:    "localhost:9080",
		Storage: storage,
		Genesis: genesis.Genesis{
			Date:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			TransPerBlock: 10,
			Difficulty:    1,
			Balances:      map[string]uint64{string(acct): 1_000},
		},
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %v", err)
	}

	t.Log("Given the need to detect live state drifting from the chain.")
	{
		t.Logf("\tTest 0:\tWhen the live state matches the chain.")
		if err := st.VerifyConsistency(context.Background()); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be consistent: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould be consistent.", success)

		t.Logf("\tTest 1:\tWhen an output vanishes from the live state.")
		outs := st.db.OutputsOf(acct)
		drift := database.BlockTx{SignedTx: database.SignedTx{Inputs: []database.OutputRef{outs[0].Ref()}}}
		if err := st.db.UTXOs().Apply(drift); err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould be able to corrupt the live state: %v", failed, err)
		}

		if err := st.VerifyConsistency(context.Background()); !errors.Is(err, ErrStateCorrupted) {
			t.Fatalf("\t%s\tTest 1:\tShould get ErrStateCorrupted, got %v.", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould get ErrStateCorrupted.", success)

		if bal := st.QueryBalanceByAccount(acct); bal != 1_000 {
			t.Fatalf("\t%s\tTest 1:\tShould rebuild the balance, got %d.", failed, bal)
		}
		if err := st.VerifyConsistency(context.Background()); err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould be consistent after the rebuild: %v", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould rebuild the state from storage.", success)
	}
}
