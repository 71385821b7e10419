package database

import (
	"context"
	"fmt"
	"math/big"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// VerifySignatures checks the signature of every transaction in the blocks.
// The checks are independent so they run across the available CPUs. The
// first failure cancels the rest.
func VerifySignatures(ctx context.Context, blocks ...Block) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, block := range blocks {
		for _, tx := range block.Transactions() {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}

				if err := tx.VerifySignature(); err != nil {
					return fmt.Errorf("blk[%d] tx[%s]: %w", block.Header.Number, tx.ID(), err)
				}

				return nil
			})
		}
	}

	return g.Wait()
}

// ValidateChain walks the blocks from the genesis block checking linkage,
// proof of work, the merkle root, every signature, and replaying every
// transaction. The blocks don't include the genesis block. It returns the
// ledger the chain folds to. A chain failing any check is rejected whole.
func ValidateChain(ctx context.Context, genesisBlock Block, blocks []Block, rules Rules, evHandler func(v string, args ...any)) (Ledger, error) {
	if err := VerifySignatures(ctx, blocks...); err != nil {
		return Ledger{}, err
	}

	ledger := NewLedger()
	if err := ledger.ApplyBlock(genesisBlock, rules); err != nil {
		return Ledger{}, fmt.Errorf("genesis: %w", err)
	}

	prev := genesisBlock
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return Ledger{}, err
		}

		difficulty := rules.Difficulty(block.Header.Number, prev.Header)
		if err := block.ValidateBlock(prev, difficulty, evHandler); err != nil {
			return Ledger{}, err
		}

		if err := ledger.ApplyBlock(block, rules); err != nil {
			return Ledger{}, err
		}

		prev = block
	}

	return ledger, nil
}

// ChainWork sums the work of the blocks, Σ16^difficulty.
func ChainWork(blocks []Block) *big.Int {
	total := new(big.Int)
	for _, block := range blocks {
		total.Add(total, Work(block.Header.Difficulty))
	}

	return total
}
