package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ardanlabs/ledger/business/web/errs"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_FromLedger(t *testing.T) {
	type table struct {
		name   string
		err    error
		status int
	}

	tt := []table{
		{name: "signature", err: database.ErrInvalidSignature, status: http.StatusBadRequest},
		{name: "wrapped utxo", err: fmt.Errorf("input[0]: %w", database.ErrUTXONotFound), status: http.StatusBadRequest},
		{name: "funds", err: database.ErrInsufficientFunds, status: http.StatusBadRequest},
		{name: "proof", err: database.ErrBadProof, status: http.StatusNotAcceptable},
		{name: "forked", err: database.ErrChainForked, status: http.StatusNotAcceptable},
		{name: "short chain", err: state.ErrShortOrEqualChain, status: http.StatusNotAcceptable},
		{name: "pending", err: mempool.ErrAlreadyPending, status: http.StatusConflict},
		{name: "not found", err: database.ErrNotFound, status: http.StatusNotFound},
	}

	t.Log("Given the need to map ledger errors to status codes.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s error.", testID, tst.name)
				{
					trusted := errs.GetTrusted(errs.FromLedger(tst.err))
					if trusted == nil {
						t.Fatalf("\t%s\tTest %d:\tShould get a trusted error.", failed, testID)
					}
					if trusted.Status != tst.status {
						t.Fatalf("\t%s\tTest %d:\tShould get status %d, got %d.", failed, testID, tst.status, trusted.Status)
					}
					if !errors.Is(trusted.Err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould keep the original error.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get status %d.", success, testID, tst.status)
				}
			}

			t.Run(tst.name, f)
		}

		t.Logf("\tTest %d:\tWhen handling an unknown error.", len(tt))
		{
			if errs.IsTrusted(errs.FromLedger(errors.New("disk full"))) {
				t.Fatalf("\t%s\tTest %d:\tShould not be trusted.", failed, len(tt))
			}
			t.Logf("\t%s\tTest %d:\tShould not be trusted.", success, len(tt))
		}
	}
}
