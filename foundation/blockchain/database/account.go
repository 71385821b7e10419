package database

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountID represents the fingerprint of the public key that owns outputs
// on the blockchain. It's the hash of the compressed public key bytes.
type AccountID string

// ToAccountID converts a hex-encoded string to an account and validates the
// hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts the public key to an account value.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(signature.HashBytes(crypto.CompressPubkey(&pk)))
}

// PublicKeyStringToAccountID converts a hex encoded public key to an
// account value.
func PublicKeyStringToAccountID(publicKey string) (AccountID, error) {
	fp, err := signature.Fingerprint(publicKey)
	if err != nil {
		return "", err
	}

	return AccountID(fp), nil
}

// IsAccountID verifies whether the underlying data represents a valid
// hex-encoded account.
func (a AccountID) IsAccountID() bool {
	return isHash(string(a))
}

// =============================================================================

// isHash validates the string is a 0x prefixed 32 byte hex value.
func isHash(s string) bool {
	const hashLength = 32

	if !has0xPrefix(s) {
		return false
	}
	s = s[2:]

	return len(s) == 2*hashLength && isHex(s)
}

// has0xPrefix validates the value starts with a 0x.
func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// isHex validates whether each byte is valid hexadecimal string.
func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}

	for _, c := range []byte(s) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
