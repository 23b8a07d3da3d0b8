package eosio

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultExpiration = 60 * time.Second
	maxCanonicalTries = 64
	blockTimeLayout   = "2006-01-02T15:04:05"
)

// Transaction is the signed part of a chain transaction.
type Transaction struct {
	Expiration     time.Time
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Actions        []Action
}

func (t Transaction) Pack() ([]byte, error) {
	enc := NewEncoder()
	enc.Uint32(uint32(t.Expiration.Unix()))
	enc.Uint16(t.RefBlockNum)
	enc.Uint32(t.RefBlockPrefix)
	enc.Varuint32(0) // max_net_usage_words
	enc.Uint8(0)     // max_cpu_usage_ms
	enc.Varuint32(0) // delay_sec
	enc.Varuint32(0) // context_free_actions
	enc.Varuint32(uint32(len(t.Actions)))
	for _, action := range t.Actions {
		action.pack(enc)
	}
	enc.Varuint32(0) // transaction_extensions
	if err := enc.Err(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// SigningDigest is sha256(chain id || packed transaction || zero cfd hash).
func SigningDigest(chainID []byte, packed []byte) []byte {
	h := sha256.New()
	h.Write(chainID)
	h.Write(packed)
	h.Write(make([]byte, 32))
	return h.Sum(nil)
}

// SignedTransaction is the push_transaction request body.
type SignedTransaction struct {
	Signatures            []string `json:"signatures"`
	Compression           string   `json:"compression"`
	PackedContextFreeData string   `json:"packed_context_free_data"`
	PackedTrx             string   `json:"packed_trx"`
}

// TaposFromInfo anchors a transaction to the last irreversible block.
func TaposFromInfo(info ChainInfo) (uint16, uint32, time.Time, error) {
	blockID, err := hex.DecodeString(info.LastIrreversibleBlockID)
	if err != nil || len(blockID) < 12 {
		return 0, 0, time.Time{}, fmt.Errorf("invalid block id %q", info.LastIrreversibleBlockID)
	}
	head, err := ParseBlockTime(info.HeadBlockTime)
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	return uint16(info.LastIrreversibleBlockNum & 0xffff), binary.LittleEndian.Uint32(blockID[8:12]), head, nil
}

// ParseBlockTime parses the zone-less UTC timestamps nodes return.
func ParseBlockTime(s string) (time.Time, error) {
	t, err := time.Parse(blockTimeLayout, strings.TrimSuffix(s, "Z"))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid block time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// SignTransaction packs and signs tx. Nodes reject non-canonical signatures,
// so when the deterministic signature is not canonical the expiration is
// moved forward one second and the transaction signed again.
func SignTransaction(tx Transaction, chainID string, key *PrivateKey) (SignedTransaction, Transaction, error) {
	chain, err := hex.DecodeString(chainID)
	if err != nil || len(chain) != 32 {
		return SignedTransaction{}, tx, fmt.Errorf("invalid chain id %q", chainID)
	}
	for i := 0; i < maxCanonicalTries; i++ {
		packed, err := tx.Pack()
		if err != nil {
			return SignedTransaction{}, tx, err
		}
		sig, err := key.Sign(SigningDigest(chain, packed))
		if err != nil {
			return SignedTransaction{}, tx, err
		}
		if sig.IsCanonical() {
			return SignedTransaction{
				Signatures:            []string{sig.String()},
				Compression:           "none",
				PackedContextFreeData: "",
				PackedTrx:             hex.EncodeToString(packed),
			}, tx, nil
		}
		tx.Expiration = tx.Expiration.Add(time.Second)
	}
	return SignedTransaction{}, tx, ErrNonCanonical
}

// TransactionID is the sha256 of the packed transaction.
func TransactionID(packed []byte) string {
	sum := sha256.Sum256(packed)
	return hex.EncodeToString(sum[:])
}
