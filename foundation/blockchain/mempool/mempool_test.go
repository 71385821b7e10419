package mempool_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	keyA = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	keyB = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

func Test_Admission(t *testing.T) {
	pkA, pkB := keys(t)
	acctA := database.PublicKeyToAccountID(pkA.PublicKey)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	genesisOut := database.TxOutput{Owner: acctA, Amount: 1_000, ParentTxID: signature.ZeroHash, Index: 0}
	confirmed, err := database.NewUTXOSetFromOutputs([]database.TxOutput{genesisOut})
	if err != nil {
		t.Fatalf("Should be able to build the confirmed set: %v", err)
	}

	t.Log("Given the need to admit transactions to the mempool.")
	{
		mp := mempool.New()

		t.Logf("\tTest 0:\tWhen A sends 100 to B.")
		tx1 := sign(t, pkA, acctB, 100, 1, genesisOut.Ref())
		if err := mempool.Validate(tx1); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould pass validation: %v", failed, err)
		}

		btx1, err := mp.Admit(tx1, confirmed)
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be admitted: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould be admitted.", success)

		if len(btx1.Outputs) != 2 || btx1.Outputs[0].Amount != 100 || btx1.Outputs[1].Amount != 900 || btx1.Outputs[1].Owner != acctA {
			t.Fatalf("\t%s\tTest 0:\tShould compute the payment and change outputs, got %+v.", failed, btx1.Outputs)
		}
		t.Logf("\t%s\tTest 0:\tShould compute the payment and change outputs.", success)

		if !confirmed.Contains(genesisOut.Ref()) {
			t.Fatalf("\t%s\tTest 0:\tShould not touch the confirmed set.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould not touch the confirmed set.", success)

		t.Logf("\tTest 1:\tWhen the same transaction is submitted again.")
		if _, err := mp.Admit(tx1, confirmed); !errors.Is(err, mempool.ErrAlreadyPending) {
			t.Fatalf("\t%s\tTest 1:\tShould get ErrAlreadyPending, got %v.", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould get ErrAlreadyPending.", success)

		t.Logf("\tTest 2:\tWhen A spends the same output again.")
		tx2 := sign(t, pkA, acctB, 200, 2, genesisOut.Ref())
		if _, err := mp.Admit(tx2, confirmed); !errors.Is(err, database.ErrUTXONotFound) {
			t.Fatalf("\t%s\tTest 2:\tShould get ErrUTXONotFound, got %v.", failed, err)
		}
		t.Logf("\t%s\tTest 2:\tShould get ErrUTXONotFound.", success)

		t.Logf("\tTest 3:\tWhen A spends the pending change.")
		tx3 := sign(t, pkA, acctB, 300, 3, btx1.Outputs[1].Ref())
		btx3, err := mp.Admit(tx3, confirmed)
		if err != nil {
			t.Fatalf("\t%s\tTest 3:\tShould be admitted: %v", failed, err)
		}
		t.Logf("\t%s\tTest 3:\tShould be admitted.", success)

		t.Logf("\tTest 4:\tWhen B spends A's pending change.")
		tx4 := sign(t, pkB, acctB, 1, 4, btx3.Outputs[1].Ref())
		if _, err := mp.Admit(tx4, confirmed); !errors.Is(err, database.ErrOwnershipMismatch) {
			t.Fatalf("\t%s\tTest 4:\tShould get ErrOwnershipMismatch, got %v.", failed, err)
		}
		tx5 := sign(t, pkB, acctB, 1, 5, btx1.Outputs[0].Ref())
		if _, err := mp.Admit(tx5, confirmed); err != nil {
			t.Fatalf("\t%s\tTest 4:\tShould let B spend its own pending output: %v", failed, err)
		}
		t.Logf("\t%s\tTest 4:\tShould only let owners spend pending outputs.", success)

		picked := mp.PickBest(-1)
		if len(picked) != 3 || picked[0].ID() != tx1.ID() || picked[1].ID() != tx3.ID() || picked[2].ID() != tx5.ID() {
			t.Fatalf("\t%s\tTest 4:\tShould pick in admission order.", failed)
		}
		t.Logf("\t%s\tTest 4:\tShould pick in admission order.", success)
	}
}

func Test_Validate(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	ref := database.OutputRef{TxID: signature.ZeroHash}

	tx := sign(t, pkA, acctB, 100, 1, ref)
	tx.Nonce = 99
	if err := mempool.Validate(tx); !errors.Is(err, database.ErrInvalidSignature) {
		t.Fatalf("Should get ErrInvalidSignature, got %v", err)
	}

	coinbase := database.SignedTx{Tx: database.NewCoinbaseTx(1, acctB, 50)}
	if err := mempool.Validate(coinbase); !errors.Is(err, database.ErrMalformedTransaction) {
		t.Fatalf("Should reject a submitted coinbase, got %v", err)
	}
}

func Test_Rebuild(t *testing.T) {
	pkA, pkB := keys(t)
	acctA := database.PublicKeyToAccountID(pkA.PublicKey)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	out1 := database.TxOutput{Owner: acctA, Amount: 1_000, ParentTxID: signature.ZeroHash, Index: 0}
	out2 := database.TxOutput{Owner: acctA, Amount: 1_000, ParentTxID: signature.ZeroHash, Index: 1}
	confirmed, err := database.NewUTXOSetFromOutputs([]database.TxOutput{out1, out2})
	if err != nil {
		t.Fatalf("Should be able to build the confirmed set: %v", err)
	}

	mp := mempool.New()
	btx1, err := mp.Admit(sign(t, pkA, acctB, 100, 1, out1.Ref()), confirmed)
	if err != nil {
		t.Fatalf("Should be admitted: %v", err)
	}
	btx2, err := mp.Admit(sign(t, pkA, acctB, 100, 2, out2.Ref()), confirmed)
	if err != nil {
		t.Fatalf("Should be admitted: %v", err)
	}

	// A block confirms tx1 and some other transaction spends out2.
	if err := confirmed.Apply(btx1); err != nil {
		t.Fatalf("Should be able to apply tx1: %v", err)
	}
	other := database.BlockTx{SignedTx: database.SignedTx{Inputs: []database.OutputRef{out2.Ref()}}}
	if err := confirmed.Apply(other); err != nil {
		t.Fatalf("Should be able to spend out2: %v", err)
	}

	inChain := func(id string) bool { return id == btx1.ID() }
	dropped := mp.Rebuild(confirmed, mp.Copy(), inChain)

	if mp.Count() != 0 {
		t.Fatalf("Should have an empty mempool, got %d.", mp.Count())
	}

	if len(dropped) != 1 || dropped[0].ID() != btx2.ID() {
		t.Fatalf("Should drop the conflicting transaction.")
	}
}

// =============================================================================

func keys(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PrivateKey) {
	pkA, err := crypto.HexToECDSA(keyA)
	if err != nil {
		t.Fatalf("Should be able to load key A: %v", err)
	}

	pkB, err := crypto.HexToECDSA(keyB)
	if err != nil {
		t.Fatalf("Should be able to load key B: %v", err)
	}

	return pkA, pkB
}

func sign(t *testing.T, pk *ecdsa.PrivateKey, to database.AccountID, value uint64, nonce uint64, inputs ...database.OutputRef) database.SignedTx {
	tx, err := database.NewTransferTx(nonce, signature.PublicKeyString(pk.PublicKey), to, value)
	if err != nil {
		t.Fatalf("Should be able to construct the transfer: %v", err)
	}

	signed, err := tx.Sign(pk, inputs)
	if err != nil {
		t.Fatalf("Should be able to sign the transfer: %v", err)
	}

	return signed
}
