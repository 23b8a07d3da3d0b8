package eosio

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	legacyPubPrefix = "EOS"
	k1PubPrefix     = "PUB_K1_"
	k1PrivPrefix    = "PVT_K1_"
	k1SigPrefix     = "SIG_K1_"
	wifVersion      = 0x80
)

var ErrNonCanonical = errors.New("signature is not canonical")

// PrivateKey is a secp256k1 key in the chain's K1 format.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// ParsePrivateKey accepts legacy WIF ("5K...") and PVT_K1_ encodings.
func ParsePrivateKey(encoded string) (*PrivateKey, error) {
	clean := strings.TrimSpace(encoded)
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	var raw []byte
	var err error
	if strings.HasPrefix(clean, k1PrivPrefix) {
		raw, err = decodeK1(strings.TrimPrefix(clean, k1PrivPrefix), "K1")
	} else {
		raw, err = decodeWIF(clean)
	}
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// WIF returns the legacy wallet import format of the key.
func (k *PrivateKey) WIF() string {
	payload := append([]byte{wifVersion}, crypto.FromECDSA(k.key)...)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(payload, second[:4]...))
}

func (k *PrivateKey) PublicKey() PublicKey {
	return PublicKey{compressed: crypto.CompressPubkey(&k.key.PublicKey)}
}

// Sign signs a 32 byte digest. Signatures are RFC6979 deterministic, so the
// same digest and key always produce the same signature.
func (k *PrivateKey) Sign(digest []byte) (Signature, error) {
	if len(digest) != 32 {
		return Signature{}, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, k.key)
	if err != nil {
		return Signature{}, err
	}
	var out Signature
	out.raw[0] = sig[64] + 27 + 4
	copy(out.raw[1:], sig[:64])
	return out, nil
}

type PublicKey struct {
	compressed []byte
}

func ParsePublicKey(encoded string) (PublicKey, error) {
	clean := strings.TrimSpace(encoded)
	var raw []byte
	var err error
	switch {
	case strings.HasPrefix(clean, k1PubPrefix):
		raw, err = decodeK1(strings.TrimPrefix(clean, k1PubPrefix), "K1")
	case strings.HasPrefix(clean, legacyPubPrefix):
		raw, err = decodeK1(strings.TrimPrefix(clean, legacyPubPrefix), "")
	default:
		return PublicKey{}, fmt.Errorf("unrecognized public key %q", encoded)
	}
	if err != nil {
		return PublicKey{}, err
	}
	if _, err := crypto.DecompressPubkey(raw); err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key: %w", err)
	}
	return PublicKey{compressed: raw}, nil
}

func (p PublicKey) String() string {
	return legacyPubPrefix + encodeK1(p.compressed, "")
}

func (p PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(p.compressed, other.compressed)
}

// Signature is the 65 byte compact form: recovery header, r, s.
type Signature struct {
	raw [65]byte
}

func ParseSignature(encoded string) (Signature, error) {
	if !strings.HasPrefix(encoded, k1SigPrefix) {
		return Signature{}, fmt.Errorf("unrecognized signature %q", encoded)
	}
	raw, err := decodeK1(strings.TrimPrefix(encoded, k1SigPrefix), "K1")
	if err != nil {
		return Signature{}, err
	}
	if len(raw) != 65 {
		return Signature{}, fmt.Errorf("signature must be 65 bytes, got %d", len(raw))
	}
	var out Signature
	copy(out.raw[:], raw)
	return out, nil
}

func (s Signature) String() string {
	return k1SigPrefix + encodeK1(s.raw[:], "K1")
}

// IsCanonical reports whether r and s both have their high bit clear and no
// redundant leading zero, which nodes require for transaction signatures.
func (s Signature) IsCanonical() bool {
	c := s.raw
	return c[1]&0x80 == 0 &&
		!(c[1] == 0 && c[2]&0x80 == 0) &&
		c[33]&0x80 == 0 &&
		!(c[33] == 0 && c[34]&0x80 == 0)
}

// Recover returns the public key that produced s over digest.
func (s Signature) Recover(digest []byte) (PublicKey, error) {
	if s.raw[0] < 31 {
		return PublicKey{}, fmt.Errorf("unexpected recovery header %d", s.raw[0])
	}
	sig := make([]byte, 65)
	copy(sig, s.raw[1:])
	sig[64] = s.raw[0] - 31
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{compressed: crypto.CompressPubkey(pub)}, nil
}

func decodeWIF(encoded string) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid wif: %w", err)
	}
	if len(raw) != 37 || raw[0] != wifVersion {
		return nil, errors.New("invalid wif length or version")
	}
	first := sha256.Sum256(raw[:33])
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], raw[33:]) {
		return nil, errors.New("invalid wif checksum")
	}
	return raw[1:33], nil
}

func decodeK1(encoded, suffix string) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) < 5 {
		return nil, errors.New("encoded key too short")
	}
	payload, checksum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(ripemdChecksum(payload, suffix), checksum) {
		return nil, errors.New("invalid checksum")
	}
	return payload, nil
}

func encodeK1(payload []byte, suffix string) string {
	out := append(append([]byte{}, payload...), ripemdChecksum(payload, suffix)...)
	return base58.Encode(out)
}

func ripemdChecksum(payload []byte, suffix string) []byte {
	h := ripemd160.New()
	h.Write(payload)
	h.Write([]byte(suffix))
	return h.Sum(nil)[:4]
}
