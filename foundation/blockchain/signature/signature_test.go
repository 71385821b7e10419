package signature_test

import (
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	pkHexKey    = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	otherHexKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

type value struct {
	Name   string
	Amount uint64
}

// =============================================================================

func Test_Signing(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	v := value{Name: "Bill", Amount: 100}

	sig, err := signature.Sign(v, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	pub := signature.PublicKeyString(pk.PublicKey)
	if err := signature.VerifySignature(pub, v, sig); err != nil {
		t.Fatalf("Should be able to verify the signature: %s", err)
	}

	v.Amount = 101
	if err := signature.VerifySignature(pub, v, sig); err == nil {
		t.Fatalf("Should not verify a signature over different data.")
	}

	other, err := crypto.HexToECDSA(otherHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	v.Amount = 100
	if err := signature.VerifySignature(signature.PublicKeyString(other.PublicKey), v, sig); err == nil {
		t.Fatalf("Should not verify a signature against the wrong key.")
	}
}

func Test_Hash(t *testing.T) {
	t.Log("Given the need to hash values canonically.")
	{
		h1 := signature.Hash(value{Name: "Bill", Amount: 100})
		h2 := signature.Hash(value{Name: "Bill", Amount: 100})
		if h1 != h2 {
			t.Fatalf("\t%s\tShould get the same hash for the same value: %s != %s", failed, h1, h2)
		}
		t.Logf("\t%s\tShould get the same hash for the same value.", success)

		if len(h1) != len(signature.ZeroHash) {
			t.Fatalf("\t%s\tShould get a 0x prefixed 32 byte hash: %s", failed, h1)
		}
		t.Logf("\t%s\tShould get a 0x prefixed 32 byte hash.", success)

		h3 := signature.Hash(value{Name: "Bill", Amount: 101})
		if h1 == h3 {
			t.Fatalf("\t%s\tShould get a different hash for a different value.", failed)
		}
		t.Logf("\t%s\tShould get a different hash for a different value.", success)
	}
}

func Test_Fingerprint(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	fp1, err := signature.Fingerprint(signature.PublicKeyString(pk.PublicKey))
	if err != nil {
		t.Fatalf("Should be able to fingerprint a public key: %s", err)
	}

	fp2, err := signature.Fingerprint(signature.PublicKeyString(pk.PublicKey))
	if err != nil {
		t.Fatalf("Should be able to fingerprint a public key: %s", err)
	}

	if fp1 != fp2 {
		t.Fatalf("Should get a stable fingerprint: %s != %s", fp1, fp2)
	}

	if _, err := signature.Fingerprint("0x1234"); err == nil {
		t.Fatalf("Should not fingerprint an invalid public key.")
	}
}
