package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
)

// Set of ledger errors grouped by the status code they map to.
var (
	badRequest = []error{
		database.ErrInvalidSignature,
		database.ErrUTXONotFound,
		database.ErrOwnershipMismatch,
		database.ErrInsufficientFunds,
		database.ErrMalformedTransaction,
		state.ErrNoTransactions,
	}

	notAcceptable = []error{
		database.ErrBadLinkage,
		database.ErrBadProof,
		database.ErrBadMerkleRoot,
		database.ErrChainForked,
		state.ErrBlockKnown,
		state.ErrShortOrEqualChain,
		state.ErrSnapshotMismatch,
	}

	conflict = []error{
		mempool.ErrAlreadyPending,
		state.ErrStaleTip,
	}
)

// FromLedger converts an error raised by the node into a trusted error with
// the matching status code. Errors that aren't validation failures are
// returned as is and end up as a 500.
func FromLedger(err error) error {
	switch {
	case err == nil:
		return nil

	case IsTrusted(err):
		return err

	case isAny(err, badRequest):
		return NewTrusted(err, http.StatusBadRequest)

	case isAny(err, notAcceptable):
		return NewTrusted(err, http.StatusNotAcceptable)

	case isAny(err, conflict):
		return NewTrusted(err, http.StatusConflict)

	case errors.Is(err, database.ErrNotFound):
		return NewTrusted(err, http.StatusNotFound)
	}

	return err
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
