package database_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	keyA = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	keyB = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

// =============================================================================

func Test_Transfer(t *testing.T) {
	pkA, pkB := keys(t)
	acctA := database.PublicKeyToAccountID(pkA.PublicKey)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	db := newDB(t, pkA)

	t.Log("Given the need to move value between accounts.")
	{
		t.Logf("\tTest 0:\tWhen A sends 100 to B.")
		{
			tx := transfer(t, pkA, db.UTXOs(), acctB, 100, 1)
			block := mine(t, db.LatestBlock(), 1, tx)

			if err := db.ApplyBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the block.", success)

			if bal := db.BalanceOf(acctA); bal != 21_000_000-100 {
				t.Fatalf("\t%s\tTest 0:\tShould have A's balance at %d, got %d.", failed, 21_000_000-100, bal)
			}
			t.Logf("\t%s\tTest 0:\tShould have A's balance reduced by 100.", success)

			if bal := db.BalanceOf(acctB); bal != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould have B's balance at 100, got %d.", failed, bal)
			}
			t.Logf("\t%s\tTest 0:\tShould have B's balance at 100.", success)

			pos, exists := db.TxPosition(tx.ID())
			if !exists || pos.BlockNumber != 1 || pos.Index != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould record the tx position, got %+v.", failed, pos)
			}
			t.Logf("\t%s\tTest 0:\tShould record the tx position.", success)

			var total uint64
			for _, out := range db.UTXOs().Values() {
				total += out.Amount
			}
			if total != 21_000_000 {
				t.Fatalf("\t%s\tTest 0:\tShould conserve value, got %d.", failed, total)
			}
			t.Logf("\t%s\tTest 0:\tShould conserve value.", success)
		}
	}
}

func Test_TransactionGates(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	db := newDB(t, pkA)
	utxos := db.UTXOs()
	owned := utxos.OutputsOf(database.PublicKeyToAccountID(pkA.PublicKey))

	type table struct {
		name string
		tx   func() database.SignedTx
		err  error
	}

	tt := []table{
		{
			name: "bad-signature",
			tx: func() database.SignedTx {
				tx := transfer(t, pkA, utxos, acctB, 100, 1).SignedTx
				tx.Value = 200
				return tx
			},
			err: database.ErrInvalidSignature,
		},
		{
			name: "utxo-not-found",
			tx: func() database.SignedTx {
				tx, _ := database.NewTransferTx(1, signature.PublicKeyString(pkA.PublicKey), acctB, 100)
				signed, _ := tx.Sign(pkA, []database.OutputRef{{TxID: signature.ZeroHash, Index: 0}})
				return signed
			},
			err: database.ErrUTXONotFound,
		},
		{
			name: "ownership-mismatch",
			tx: func() database.SignedTx {
				tx, _ := database.NewTransferTx(1, signature.PublicKeyString(pkB.PublicKey), acctB, 100)
				signed, _ := tx.Sign(pkB, []database.OutputRef{owned[0].Ref()})
				return signed
			},
			err: database.ErrOwnershipMismatch,
		},
		{
			name: "insufficient-funds",
			tx: func() database.SignedTx {
				tx, _ := database.NewTransferTx(1, signature.PublicKeyString(pkA.PublicKey), acctB, 21_000_001)
				signed, _ := tx.Sign(pkA, []database.OutputRef{owned[0].Ref()})
				return signed
			},
			err: database.ErrInsufficientFunds,
		},
		{
			name: "duplicate-input",
			tx: func() database.SignedTx {
				tx, _ := database.NewTransferTx(1, signature.PublicKeyString(pkA.PublicKey), acctB, 100)
				signed, _ := tx.Sign(pkA, []database.OutputRef{owned[0].Ref(), owned[0].Ref()})
				return signed
			},
			err: database.ErrMalformedTransaction,
		},
	}

	t.Log("Given the need to reject invalid transactions.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s transaction.", testID, tst.name)
				{
					tx := tst.tx()

					err := tx.Validate()
					if err == nil {
						_, err = database.ResolveInputs(tx, utxos)
					}

					if !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould get %v, got %v.", failed, testID, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get %v.", success, testID, tst.err)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_UTXOApplyAllOrNothing(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	db := newDB(t, pkA)
	utxos := db.UTXOs().Copy()

	tx := transfer(t, pkA, utxos, acctB, 100, 1)
	tx.Inputs = append(tx.Inputs, database.OutputRef{TxID: signature.ZeroHash, Index: 9})

	before := utxos.Hash()
	if err := utxos.Apply(tx); !errors.Is(err, database.ErrUTXONotFound) {
		t.Fatalf("Should get ErrUTXONotFound, got %v", err)
	}

	if after := utxos.Hash(); before != after {
		t.Fatalf("Should leave the set untouched on failure.")
	}
}

func Test_DoubleSpendInBlock(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	db := newDB(t, pkA)

	tx1 := transfer(t, pkA, db.UTXOs(), acctB, 100, 1)
	tx2 := transfer(t, pkA, db.UTXOs(), acctB, 200, 2)

	block := mine(t, db.LatestBlock(), 1, tx1, tx2)
	if err := db.ApplyBlock(block); !errors.Is(err, database.ErrUTXONotFound) {
		t.Fatalf("Should reject a block spending the same output twice, got %v", err)
	}

	if db.LatestBlock().Header.Number != 0 {
		t.Fatalf("Should leave the chain untouched.")
	}
}

func Test_ValidateChain(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	db := newDB(t, pkA)
	for i := range 3 {
		tx := transfer(t, pkA, db.UTXOs(), acctB, 10, uint64(i+1))
		if err := db.ApplyBlock(mine(t, db.LatestBlock(), 1, tx)); err != nil {
			t.Fatalf("Should be able to apply block %d: %v", i+1, err)
		}
	}

	rules := db.Rules()
	genesisBlock := db.GenesisBlock()

	if _, err := database.ValidateChain(context.Background(), genesisBlock, db.Blocks(), rules, nil); err != nil {
		t.Fatalf("Should be able to validate the chain: %v", err)
	}

	type table struct {
		name   string
		mutate func(b *database.Block)
		err    error
	}

	tt := []table{
		{name: "prev-hash", mutate: func(b *database.Block) { b.Header.PrevBlockHash = signature.ZeroHash }, err: database.ErrBadLinkage},
		{name: "number", mutate: func(b *database.Block) { b.Header.Number++ }, err: database.ErrBadLinkage},
		{name: "merkle-root", mutate: func(b *database.Block) { b.Header.MerkleRoot = signature.ZeroHash; solve(b) }, err: database.ErrBadMerkleRoot},
		{name: "difficulty", mutate: func(b *database.Block) { b.Header.Difficulty = 0 }, err: database.ErrBadProof},
		{name: "nonce", mutate: func(b *database.Block) { unsolve(b) }, err: database.ErrBadProof},
	}

	t.Log("Given the need to reject a chain with any single field changed.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen changing the %s of block 2.", testID, tst.name)
				{
					blocks := db.Blocks()
					tst.mutate(&blocks[1])

					_, err := database.ValidateChain(context.Background(), genesisBlock, blocks, rules, nil)
					if !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould get %v, got %v.", failed, testID, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get %v.", success, testID, tst.err)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_TamperedTransaction(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	db := newDB(t, pkA)
	tx := transfer(t, pkA, db.UTXOs(), acctB, 10, 1)
	if err := db.ApplyBlock(mine(t, db.LatestBlock(), 1, tx)); err != nil {
		t.Fatalf("Should be able to apply the block: %v", err)
	}

	blockData := database.NewBlockData(db.Blocks()[0])
	outputs := append([]database.TxOutput(nil), blockData.Trans[0].Outputs...)
	outputs[0].Amount = 1_000
	blockData.Trans[0].Outputs = outputs

	block, err := database.ToBlock(blockData)
	if err != nil {
		t.Fatalf("Should be able to convert the block: %v", err)
	}

	if _, err := database.ValidateChain(context.Background(), db.GenesisBlock(), []database.Block{block}, db.Rules(), nil); !errors.Is(err, database.ErrMalformedTransaction) {
		t.Fatalf("Should reject forged outputs, got %v", err)
	}

	blockData = database.NewBlockData(db.Blocks()[0])
	blockData.Header.Nonce++
	if _, err := database.ToBlock(blockData); !errors.Is(err, database.ErrBadProof) {
		t.Fatalf("Should reject a carried hash that doesn't match, got %v", err)
	}
}

func Test_Replay(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	db := newDB(t, pkA)
	for i := range 2 {
		tx := transfer(t, pkA, db.UTXOs(), acctB, 10, uint64(i+1))
		if err := db.ApplyBlock(mine(t, db.LatestBlock(), 1, tx)); err != nil {
			t.Fatalf("Should be able to apply block %d: %v", i+1, err)
		}
	}

	l1, err := db.Replay()
	if err != nil {
		t.Fatalf("Should be able to replay the chain: %v", err)
	}

	l2, err := db.Replay()
	if err != nil {
		t.Fatalf("Should be able to replay the chain: %v", err)
	}

	if !l1.Equal(l2) || l1.UTXOs.Hash() != l2.UTXOs.Hash() {
		t.Fatalf("Should get the same ledger replaying twice.")
	}

	if !l1.Equal(db.Ledger()) {
		t.Fatalf("Should get the live ledger replaying the chain.")
	}
}

func Test_ReplaceStorageFailure(t *testing.T) {
	pkA, pkB := keys(t)
	acctB := database.PublicKeyToAccountID(pkB.PublicKey)

	mem, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to open storage: %v", err)
	}
	storage := &failingStorage{Memory: mem}

	db, err := database.New(newGenesis(pkA), database.Rules{}, storage, nil)
	if err != nil {
		t.Fatalf("Should be able to open the database: %v", err)
	}

	other := newDB(t, pkA)

	for i := range 3 {
		tx := transfer(t, pkA, db.UTXOs(), acctB, 10, uint64(i+1))
		if err := db.ApplyBlock(mine(t, db.LatestBlock(), 1, tx)); err != nil {
			t.Fatalf("Should be able to apply block %d: %v", i+1, err)
		}
	}

	for i := range 4 {
		tx := transfer(t, pkA, other.UTXOs(), acctB, 20, uint64(i+100))
		if err := other.ApplyBlock(mine(t, other.LatestBlock(), 1, tx)); err != nil {
			t.Fatalf("Should be able to apply competing block %d: %v", i+1, err)
		}
	}

	tip := db.LatestBlock()

	t.Log("Given the need to keep storage in step with the chain when a replace fails.")
	{
		t.Logf("\tTest 0:\tWhen storage fails writing the second block of the new chain.")
		{
			storage.failAt = 2

			if err := db.Replace(other.Blocks(), other.Ledger()); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould get an error from Replace.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get an error from Replace.", success)

			if db.LatestBlock().Hash() != tip.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould keep the current chain in memory.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the current chain in memory.", success)

			if err := db.Rebuild(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to rebuild from storage: %v", failed, err)
			}

			latest := db.LatestBlock()
			if latest.Header.Number != 3 || latest.Hash() != tip.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould rebuild the current chain, got blk[%d].", failed, latest.Header.Number)
			}
			t.Logf("\t%s\tTest 0:\tShould rebuild the current chain from storage.", success)
		}
	}
}

func Test_POWCancel(t *testing.T) {
	pkA, _ := keys(t)
	db := newDB(t, pkA)

	tx := transfer(t, pkA, db.UTXOs(), database.PublicKeyToAccountID(pkA.PublicKey), 10, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	args := database.POWArgs{
		PrevBlock:  db.LatestBlock(),
		Difficulty: 64,
		Trans:      []database.BlockTx{tx},
	}

	if _, err := database.POW(ctx, args); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Should stop mining when cancelled, got %v", err)
	}
}

func Test_GenesisBlock(t *testing.T) {
	pkA, pkB := keys(t)

	gen := genesis.Genesis{
		Date:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TransPerBlock: 10,
		Difficulty:    1,
		Balances: map[string]uint64{
			string(database.PublicKeyToAccountID(pkA.PublicKey)): 100,
			string(database.PublicKeyToAccountID(pkB.PublicKey)): 200,
		},
	}

	b1, err := database.GenesisBlock(gen)
	if err != nil {
		t.Fatalf("Should be able to build the genesis block: %v", err)
	}

	b2, err := database.GenesisBlock(gen)
	if err != nil {
		t.Fatalf("Should be able to build the genesis block: %v", err)
	}

	if b1.Hash() != b2.Hash() {
		t.Fatalf("Should build the same genesis block every time.")
	}

	if len(b1.Transactions()) != 2 {
		t.Fatalf("Should have one coinbase per allocation, got %d.", len(b1.Transactions()))
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

func newGenesis(pk *ecdsa.PrivateKey) genesis.Genesis {
	return genesis.Genesis{
		Date:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TransPerBlock: 10,
		Difficulty:    1,
		Balances: map[string]uint64{
			string(database.PublicKeyToAccountID(pk.PublicKey)): 21_000_000,
		},
	}
}

func newDB(t *testing.T, pk *ecdsa.PrivateKey) *database.Database {
	storage, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to open storage: %v", err)
	}

	db, err := database.New(newGenesis(pk), database.Rules{}, storage, nil)
	if err != nil {
		t.Fatalf("Should be able to open the database: %v", err)
	}

	return db
}

// transfer builds a signed transfer spending every output the sender owns.
func transfer(t *testing.T, pk *ecdsa.PrivateKey, utxos *database.UTXOSet, to database.AccountID, value uint64, nonce uint64) database.BlockTx {
	from := database.PublicKeyToAccountID(pk.PublicKey)

	var inputs []database.OutputRef
	var total uint64
	for _, out := range utxos.OutputsOf(from) {
		inputs = append(inputs, out.Ref())
		total += out.Amount
	}

	tx, err := database.NewTransferTx(nonce, signature.PublicKeyString(pk.PublicKey), to, value)
	if err != nil {
		t.Fatalf("Should be able to construct the transfer: %v", err)
	}

	signed, err := tx.Sign(pk, inputs)
	if err != nil {
		t.Fatalf("Should be able to sign the transfer: %v", err)
	}

	outputs, err := database.BuildOutputs(signed, total)
	if err != nil {
		t.Fatalf("Should be able to build the outputs: %v", err)
	}

	return database.NewBlockTx(signed, outputs)
}

func mine(t *testing.T, prev database.Block, difficulty uint16, trans ...database.BlockTx) database.Block {
	args := database.POWArgs{
		PrevBlock:  prev,
		Difficulty: difficulty,
		Trans:      trans,
	}

	block, err := database.POW(context.Background(), args)
	if err != nil {
		t.Fatalf("Should be able to mine the block: %v", err)
	}

	return block
}

// solve moves the nonce until the hash meets a difficulty of 1.
func solve(b *database.Block) {
	for b.Hash()[2] != '0' {
		b.Header.Nonce++
	}
}

// unsolve moves the nonce until the hash no longer meets the difficulty.
func unsolve(b *database.Block) {
	for {
		b.Header.Nonce++
		if h := b.Hash(); h[2] != '0' {
			return
		}
	}
}

// failingStorage fails the first write of the armed block number.
type failingStorage struct {
	*memory.Memory
	failAt uint64
}

func (fs *failingStorage) Write(blockData database.BlockData) error {
	if fs.failAt != 0 && blockData.Header.Number == fs.failAt {
		fs.failAt = 0
		return errors.New("disk full")
	}

	return fs.Memory.Write(blockData)
}
