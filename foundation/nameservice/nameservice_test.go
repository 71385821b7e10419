package nameservice_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Lookup(t *testing.T) {
	dir := t.TempDir()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %v", err)
	}

	if err := crypto.SaveECDSA(filepath.Join(dir, "kennedy"+nameservice.KeyExtension), pk); err != nil {
		t.Fatalf("Should be able to save the key: %v", err)
	}

	t.Log("Given the need to resolve account names from key files.")
	{
		ns, err := nameservice.New(dir)
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to load the folder: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould be able to load the folder.", success)

		accountID := database.PublicKeyToAccountID(pk.PublicKey)
		if name := ns.Lookup(accountID); name != "kennedy" {
			t.Fatalf("\t%s\tTest 0:\tShould resolve the key file name, got %q.", failed, name)
		}
		t.Logf("\t%s\tTest 0:\tShould resolve the key file name.", success)

		unknown := database.AccountID("0x0000000000000000000000000000000000000000000000000000000000000001")
		if name := ns.Lookup(unknown); name != string(unknown) {
			t.Fatalf("\t%s\tTest 0:\tShould fall back to the account id, got %q.", failed, name)
		}
		t.Logf("\t%s\tTest 0:\tShould fall back to the account id.", success)
	}
}
