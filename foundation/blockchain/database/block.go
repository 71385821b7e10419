package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Set of errors a block can fail validation with.
var (
	ErrBadLinkage    = errors.New("bad linkage")
	ErrBadProof      = errors.New("bad proof")
	ErrBadMerkleRoot = errors.New("bad merkle root")
)

// ErrChainForked is returned when a block builds on a parent we know that
// isn't our tip. The peer's chain has to be looked at as a whole.
var ErrChainForked = fmt.Errorf("blockchain forked, start resync: %w", ErrBadLinkage)

// BlockVersion is the current version of the header encoding.
const BlockVersion uint8 = 1

// =============================================================================

// BlockHeader represents common information required for each block. Only
// the nonce changes once the header has been assembled.
type BlockHeader struct {
	Number        uint64 `json:"number"`          // Ethereum: Block number in the chain.
	PrevBlockHash string `json:"prev_block_hash"` // Bitcoin: Hash of the previous block in the chain.
	MerkleRoot    string `json:"merkle_root"`     // Bitcoin: Merkle root over the ids of the transactions in this block.
	TimeStamp     uint64 `json:"timestamp"`       // Bitcoin: Time the block was mined in milliseconds.
	Difficulty    uint16 `json:"difficulty"`      // Ethereum: Number of leading 0's needed to solve the hash solution.
	Nonce         uint64 `json:"nonce"`           // Bitcoin: Value identified to solve the hash solution.
	Version       uint8  `json:"version"`
}

// Block represents a group of transactions batched together.
type Block struct {
	Header     BlockHeader
	MerkleTree *merkle.Tree[BlockTx]
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrevBlock  Block
	Difficulty uint16
	Trans      []BlockTx
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzel.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	// Construct a merkle tree from the transaction for this block. The root
	// of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(args.Trans)
	if err != nil {
		return Block{}, err
	}

	// A block can't be older than its parent.
	now := uint64(time.Now().UTC().UnixMilli())
	if now < args.PrevBlock.Header.TimeStamp {
		now = args.PrevBlock.Header.TimeStamp
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Number:        args.PrevBlock.Header.Number + 1,
			PrevBlockHash: args.PrevBlock.Hash(),
			MerkleRoot:    tree.RootHex(),
			TimeStamp:     now,
			Difficulty:    args.Difficulty,
			Nonce:         0, // Will be identified by the POW algorithm.
			Version:       BlockVersion,
		},
		MerkleTree: tree,
	}

	// Peform the proof of work mining operation.
	if err := nb.performPOW(ctx, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started")
	defer ev("database: PerformPOW: MINING: completed")

	// Log the transactions that are a part of this potential block.
	for _, tx := range b.MerkleTree.Values() {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Loop until we find a solution or are told another node found one.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		// Did we get cancelled trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			if b.Header.Nonce == math.MaxUint64 {
				b.Header.TimeStamp++
				b.Header.Nonce = 0
				continue
			}
			b.Header.Nonce++
			continue
		}

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {

	// CORE NOTE: Hashing the block header and not the whole block so the blockchain
	// can be cryptographically checked by only needing block headers and not full
	// blocks with the transaction data. The header commits to the transactions
	// through the merkle root.

	return signature.Hash(b.Header)
}

// Transactions returns the transactions in block order.
func (b Block) Transactions() []BlockTx {
	if b.MerkleTree == nil {
		return nil
	}

	return b.MerkleTree.Values()
}

// CheckProof performs the checks that only need the block itself: the hash
// solves the puzzle at the header's difficulty and the merkle root commits to
// the transactions carried.
func (b Block) CheckProof() error {
	if b.Header.Version != BlockVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadProof, b.Header.Version)
	}

	hash := b.Hash()
	if !isHashSolved(b.Header.Difficulty, hash) {
		return fmt.Errorf("%w: %s doesn't solve difficulty %d", ErrBadProof, hash, b.Header.Difficulty)
	}

	return b.checkMerkleRoot()
}

// ValidateBlock takes a block and validates it to be included into the
// blockchain on top of the previous block. The difficulty is what the chain's
// rules require at this height.
func (b Block) ValidateBlock(previousBlock Block, difficulty uint16, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("%w: this block is not the next number, got %d, exp %d", ErrBadLinkage, b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if prevHash := previousBlock.Hash(); b.Header.PrevBlockHash != prevHash {
		return fmt.Errorf("%w: parent block hash doesn't match our known parent, got %s, exp %s", ErrBadLinkage, b.Header.PrevBlockHash, prevHash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp isn't before parent block's timestamp", b.Header.Number)

	if b.Header.TimeStamp < previousBlock.Header.TimeStamp {
		parentTime := time.UnixMilli(int64(previousBlock.Header.TimeStamp))
		blockTime := time.UnixMilli(int64(b.Header.TimeStamp))
		return fmt.Errorf("%w: block timestamp is before parent block, parent %s, block %s", ErrBadLinkage, parentTime, blockTime)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty matches the chain rules", b.Header.Number)

	if b.Header.Difficulty != difficulty {
		return fmt.Errorf("%w: block difficulty %d, exp %d", ErrBadProof, b.Header.Difficulty, difficulty)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)
	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	return b.CheckProof()
}

// checkMerkleRoot recomputes the merkle root from the transaction ids.
func (b Block) checkMerkleRoot() error {
	trans := b.Transactions()
	if len(trans) == 0 {
		return fmt.Errorf("%w: block has no transactions", ErrBadMerkleRoot)
	}

	ids := make([]string, len(trans))
	for i, tx := range trans {
		ids[i] = tx.ID()
	}

	root, err := merkle.Root(ids)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadMerkleRoot, err)
	}

	if b.Header.MerkleRoot != root {
		return fmt.Errorf("%w: merkle root does not match transactions, got %s, exp %s", ErrBadMerkleRoot, b.Header.MerkleRoot, root)
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's
// after the 0x prefix.
func isHashSolved(difficulty uint16, hash string) bool {
	if len(hash) != len(signature.ZeroHash) || !has0xPrefix(hash) {
		return false
	}

	d := int(difficulty)
	if d > len(hash)-2 {
		return false
	}

	for _, c := range hash[2 : 2+d] {
		if c != '0' {
			return false
		}
	}

	return true
}

// =============================================================================

// GenesisBlock builds block zero from the genesis file. There is one coinbase
// per allocation, ordered by account, so every node builds the same block.
func GenesisBlock(gen genesis.Genesis) (Block, error) {
	allocs := gen.Allocations()
	if len(allocs) == 0 {
		return Block{}, errors.New("genesis has no allocations")
	}

	timeStamp := uint64(gen.Date.UTC().UnixMilli())

	trans := make([]BlockTx, len(allocs))
	for i, alloc := range allocs {
		accountID, err := ToAccountID(alloc.AccountID)
		if err != nil {
			return Block{}, fmt.Errorf("genesis account %q: %w", alloc.AccountID, err)
		}

		signedTx := SignedTx{Tx: NewCoinbaseTx(0, accountID, alloc.Amount)}
		outputs, err := BuildOutputs(signedTx, 0)
		if err != nil {
			return Block{}, err
		}

		trans[i] = BlockTx{
			SignedTx:  signedTx,
			TimeStamp: timeStamp,
			Outputs:   outputs,
		}
	}

	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Header: BlockHeader{
			Number:        0,
			PrevBlockHash: signature.ZeroHash,
			MerkleRoot:    tree.RootHex(),
			TimeStamp:     timeStamp,
			Difficulty:    gen.Difficulty,
			Version:       BlockVersion,
		},
		MerkleTree: tree,
	}

	return block, nil
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []BlockTx   `json:"trans"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Transactions(),
	}

	return blockData
}

// ToBlock converts a storage block into a database block. The hash that was
// carried has to be the hash of the header.
func ToBlock(blockData BlockData) (Block, error) {
	if len(blockData.Trans) == 0 {
		return Block{}, fmt.Errorf("%w: block %d has no transactions", ErrBadMerkleRoot, blockData.Header.Number)
	}

	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Header:     blockData.Header,
		MerkleTree: tree,
	}

	if hash := block.Hash(); hash != blockData.Hash {
		return Block{}, fmt.Errorf("%w: block %d hash %s, recomputed %s", ErrBadProof, blockData.Header.Number, blockData.Hash, hash)
	}

	return block, nil
}
