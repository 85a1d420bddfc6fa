package sign

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Compile-time interface checks.
var _ Signer = (*EthereumSigner)(nil)
var _ PublicKey = (*EthereumPublicKey)(nil)
var _ Address = (*EthereumAddress)(nil)

// ethSignatureLength is r (32) + s (32) + v (1).
const ethSignatureLength = 65

// EthereumAddress implements the Address interface for Ethereum.
type EthereumAddress struct{ common.Address }

// NewEthereumAddress creates a new Ethereum address from a common.Address.
func NewEthereumAddress(addr common.Address) EthereumAddress {
	return EthereumAddress{addr}
}

// NewEthereumAddressFromHex parses a 20-byte hex address, with or without
// the 0x prefix.
func NewEthereumAddressFromHex(addrHex string) (EthereumAddress, error) {
	if !common.IsHexAddress(addrHex) {
		return EthereumAddress{}, fmt.Errorf("invalid ethereum address: %q", addrHex)
	}
	return EthereumAddress{common.HexToAddress(addrHex)}, nil
}

func (a EthereumAddress) String() string { return a.Address.Hex() }

// Equals returns true if this address equals the other address.
func (a EthereumAddress) Equals(other Address) bool {
	if otherAddr, ok := other.(EthereumAddress); ok {
		return a.Address == otherAddr.Address
	}
	return strings.EqualFold(a.String(), other.String())
}

// EthereumPublicKey implements the PublicKey interface for Ethereum.
type EthereumPublicKey struct{ *ecdsa.PublicKey }

// NewEthereumPublicKey wraps an ECDSA public key.
func NewEthereumPublicKey(pub *ecdsa.PublicKey) EthereumPublicKey {
	return EthereumPublicKey{pub}
}

// NewEthereumPublicKeyFromHex parses a hex-encoded public key, accepting
// both compressed (33 byte) and uncompressed (65 byte) encodings. Gateway
// operators usually publish the compressed form.
func NewEthereumPublicKeyFromHex(pubHex string) (EthereumPublicKey, error) {
	if !strings.HasPrefix(pubHex, "0x") {
		pubHex = "0x" + pubHex
	}
	raw, err := hexutil.Decode(pubHex)
	if err != nil {
		return EthereumPublicKey{}, fmt.Errorf("could not decode public key hex: %w", err)
	}

	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 33:
		pub, err = ethcrypto.DecompressPubkey(raw)
	case 65:
		pub, err = ethcrypto.UnmarshalPubkey(raw)
	default:
		return EthereumPublicKey{}, fmt.Errorf("invalid public key length: %d", len(raw))
	}
	if err != nil {
		return EthereumPublicKey{}, fmt.Errorf("could not parse public key: %w", err)
	}
	return EthereumPublicKey{pub}, nil
}

func (p EthereumPublicKey) Address() Address {
	return EthereumAddress{ethcrypto.PubkeyToAddress(*p.PublicKey)}
}

func (p EthereumPublicKey) Bytes() []byte { return ethcrypto.FromECDSAPub(p.PublicKey) }

// Verify reports whether sig is a valid secp256k1 signature over digest
// under this key. Malformed signatures yield false rather than an error.
func (p EthereumPublicKey) Verify(digest []byte, sig Signature) bool {
	if len(sig) != ethSignatureLength {
		return false
	}
	// VerifySignature takes the 64-byte [R || S] form without the recovery byte.
	return ethcrypto.VerifySignature(p.Bytes(), digest, sig[:ethSignatureLength-1])
}

// EthereumSigner is the Ethereum implementation of the Signer interface.
type EthereumSigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  EthereumPublicKey
}

// NewEthereumSigner creates a new Ethereum signer from a hex-encoded
// private key, with or without the 0x prefix.
func NewEthereumSigner(privateKeyHex string) (*EthereumSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return &EthereumSigner{
		privateKey: key,
		publicKey:  EthereumPublicKey{key.Public().(*ecdsa.PublicKey)},
	}, nil
}

// PublicKey returns the public key associated with this signer.
func (s *EthereumSigner) PublicKey() PublicKey { return s.publicKey }

// ECDSAKey exposes the underlying private key for callers that need to
// build Ethereum transaction signers (contract deployment).
func (s *EthereumSigner) ECDSAKey() *ecdsa.PrivateKey { return s.privateKey }

// Sign expects the input to be a digest (e.g. a Keccak256 hash).
func (s *EthereumSigner) Sign(digest []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, err
	}
	// Adjust V from 0/1 to 27/28 for Ethereum compatibility.
	if sig[ethSignatureLength-1] < 27 {
		sig[ethSignatureLength-1] += 27
	}
	return Signature(sig), nil
}

// RecoverAddress recovers the signer address of a digest signature.
// VerifyJSONAddress and VerifyBytesAddress build on it when only the
// signer's address is known.
func RecoverAddress(digest []byte, sig Signature) (Address, error) {
	if len(sig) != ethSignatureLength {
		return nil, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	localSig := make([]byte, ethSignatureLength)
	copy(localSig, sig)
	if localSig[ethSignatureLength-1] >= 27 {
		localSig[ethSignatureLength-1] -= 27
	}
	pubKey, err := ethcrypto.SigToPub(digest, localSig)
	if err != nil {
		return nil, fmt.Errorf("signature recovery failed: %w", err)
	}
	return EthereumAddress{ethcrypto.PubkeyToAddress(*pubKey)}, nil
}
