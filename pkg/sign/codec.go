package sign

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignJSON canonicalizes body, hashes the canonical bytes with Keccak256
// and signs the digest. Signing is deterministic for a given body and key:
// bodies that differ only in field order produce identical signatures.
func SignJSON(signer Signer, body any) (Signature, error) {
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("could not canonicalize body: %w", err)
	}
	return signer.Sign(ethcrypto.Keccak256(canonical))
}

// VerifyJSON recomputes the canonical bytes of body and reports whether sig
// validates against pub. It returns false, never an error, on malformed
// signatures or bodies that cannot be canonicalized.
func VerifyJSON(sig Signature, pub PublicKey, body any) bool {
	if pub == nil {
		return false
	}
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return false
	}
	return pub.Verify(ethcrypto.Keccak256(canonical), sig)
}

// SignBytes signs a raw byte payload, skipping canonicalization. Used for
// binary response bodies.
func SignBytes(signer Signer, payload []byte) (Signature, error) {
	return signer.Sign(ethcrypto.Keccak256(payload))
}

// VerifyBytes reports whether sig validates against pub for a raw byte
// payload. Malformed input yields false.
func VerifyBytes(sig Signature, pub PublicKey, payload []byte) bool {
	if pub == nil {
		return false
	}
	return pub.Verify(ethcrypto.Keccak256(payload), sig)
}

// VerifyJSONAddress recovers the signer of sig over the canonical bytes of
// body and reports whether it matches addr. Used when an endpoint publishes
// its address rather than its full public key.
func VerifyJSONAddress(sig Signature, addr Address, body any) bool {
	if addr == nil {
		return false
	}
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return false
	}
	recovered, err := RecoverAddress(ethcrypto.Keccak256(canonical), sig)
	if err != nil {
		return false
	}
	return recovered.Equals(addr)
}

// VerifyBytesAddress is the raw-payload counterpart of VerifyJSONAddress.
func VerifyBytesAddress(sig Signature, addr Address, payload []byte) bool {
	if addr == nil {
		return false
	}
	recovered, err := RecoverAddress(ethcrypto.Keccak256(payload), sig)
	if err != nil {
		return false
	}
	return recovered.Equals(addr)
}
