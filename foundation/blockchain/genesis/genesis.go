// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// DefaultPath is where the node looks for the genesis file.
const DefaultPath = "zblock/genesis.json"

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	TransPerBlock uint16            `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16            `json:"difficulty"`      // How many leading zero hex digits a block hash needs.
	MiningReward  uint64            `json:"mining_reward"`   // Reward for mining a block, zero disables the coinbase.
	Balances      map[string]uint64 `json:"balances"`        // Initial allocation keyed by account id.
}

// Allocation is one account's share of the genesis issuance.
type Allocation struct {
	AccountID string
	Amount    uint64
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	if path == "" {
		path = DefaultPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, fmt.Errorf("genesis %s: %w", path, err)
	}

	return genesis, nil
}

// Validate checks the genesis values make a usable chain.
func (g Genesis) Validate() error {
	if len(g.Balances) == 0 {
		return errors.New("no balances allocated")
	}

	if g.TransPerBlock == 0 {
		return errors.New("trans_per_block must be greater than zero")
	}

	if g.Difficulty > 64 {
		return errors.New("difficulty can't exceed the hash length")
	}

	for account, amount := range g.Balances {
		if amount == 0 {
			return fmt.Errorf("account %s allocated zero", account)
		}
	}

	return nil
}

// Allocations returns the balances sorted by account id. Every node has to
// build the same genesis block from the same file.
func (g Genesis) Allocations() []Allocation {
	allocs := make([]Allocation, 0, len(g.Balances))
	for account, amount := range g.Balances {
		allocs = append(allocs, Allocation{AccountID: account, Amount: amount})
	}

	sort.Slice(allocs, func(i, j int) bool {
		return allocs[i].AccountID < allocs[j].AccountID
	})

	return allocs
}
