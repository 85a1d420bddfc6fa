// Package sign implements the signing codec used by the gateway protocol:
// deterministic (canonical) JSON serialization, secp256k1 signatures over
// Keccak256 digests, and verification against a known public key.
//
// Two payload flavors are supported. Structured JSON bodies are
// canonicalized before hashing so that semantically identical values always
// produce identical signatures regardless of field order. Raw byte payloads
// (binary response bodies) skip canonicalization and are hashed as-is.
package sign

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Signer produces signatures over pre-computed digests using a private
// credential. Implementations must be safe for concurrent use.
type Signer interface {
	// PublicKey returns the public key associated with this signer.
	PublicKey() PublicKey
	// Sign generates a signature over the given digest.
	Sign(digest []byte) (Signature, error)
}

// PublicKey is a blockchain-agnostic public key.
type PublicKey interface {
	// Address returns the address derived from this public key.
	Address() Address
	// Bytes returns the raw encoding of the public key.
	Bytes() []byte
	// Verify reports whether the signature is valid for the given digest
	// under this key. It returns false, never an error, on malformed input.
	Verify(digest []byte, sig Signature) bool
}

// Address is a blockchain-specific account address.
type Address interface {
	fmt.Stringer

	// Equals returns true if this address equals the other address.
	Equals(other Address) bool
}

// Signature is a raw cryptographic signature.
type Signature []byte

// MarshalJSON encodes the signature as a 0x-prefixed hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a 0x-prefixed hex string into the signature.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// String implements the fmt.Stringer interface.
func (s Signature) String() string {
	return hexutil.Encode(s)
}
