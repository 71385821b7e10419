// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// ledgerStamp is mixed into every digest that gets signed. This makes it
// clear a signature was produced for this ledger and can't be replayed
// as a signature over some other kind of message.
const ledgerStamp = "\x19Ledger Signed Message:\n32"

// =============================================================================

// Encode returns the canonical byte encoding for the value. RLP encodes
// struct fields in declaration order and has exactly one encoding for any
// given value, so anything that is hashed or signed goes through here.
func Encode(value any) ([]byte, error) {
	return rlp.EncodeToBytes(value)
}

// Hash returns a unique string for the value. It's the SHA-256 digest of
// the canonical encoding in 0x hex.
func Hash(value any) string {
	data, err := Encode(value)
	if err != nil {
		return ZeroHash
	}

	return HashBytes(data)
}

// HashBytes returns the SHA-256 digest of the data in 0x hex.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the value. The signature is
// returned in the 65 byte [R|S|V] format as 0x hex.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {

	// Prepare the data for signing.
	digest, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", err
	}

	// Check the signature verifies against the key it was signed with.
	pub := crypto.CompressPubkey(&privateKey.PublicKey)
	if !Verify(pub, digest, sig) {
		return "", errors.New("invalid signature")
	}

	return hexutil.Encode(sig), nil
}

// VerifySignature checks the hex encoded signature was produced by the
// private key behind the hex encoded public key over the specified value.
func VerifySignature(publicKey string, value any, sig string) error {
	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return fmt.Errorf("decoding public key: %w", err)
	}

	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}

	digest, err := stamp(value)
	if err != nil {
		return err
	}

	if !Verify(pub, digest, sigBytes) {
		return errors.New("signature does not match public key")
	}

	return nil
}

// Verify is the verification primitive. The public key can be compressed
// or uncompressed and the signature is in the [R|S] or [R|S|V] format.
func Verify(publicKey []byte, digest []byte, sig []byte) bool {
	switch len(sig) {
	case crypto.SignatureLength:
		sig = sig[:crypto.RecoveryIDOffset]
	case crypto.RecoveryIDOffset:
	default:
		return false
	}

	return crypto.VerifySignature(publicKey, digest, sig)
}

// =============================================================================

// PublicKeyString returns the compressed public key as 0x hex. This is how
// accounts identify themselves inside transactions.
func PublicKeyString(pk ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.CompressPubkey(&pk))
}

// Fingerprint returns the hash of the hex encoded public key's bytes.
func Fingerprint(publicKey string) (string, error) {
	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return "", fmt.Errorf("decoding public key: %w", err)
	}

	if _, err := crypto.DecompressPubkey(pub); err != nil {
		if _, err := crypto.UnmarshalPubkey(pub); err != nil {
			return "", errors.New("invalid public key")
		}
	}

	return HashBytes(pub), nil
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this value with
// the ledger stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {

	// Encode the value canonically.
	data, err := Encode(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := sha256.Sum256(data)

	// Hash the stamp and txHash together in a final 32 byte array
	// that represents the data.
	return crypto.Keccak256([]byte(ledgerStamp), txHash[:]), nil
}
