package whaleex

import (
	"crypto/sha256"

	"crypto-client/internal/core"
	"crypto-client/internal/eosio"
)

type Signer struct {
	account string
	key     *eosio.PrivateKey
}

func NewSigner(signing core.SigningContext) (*Signer, error) {
	if err := signing.RequireEOS(); err != nil {
		return nil, err
	}
	key, err := eosio.ParsePrivateKey(signing.EOSPrivateKey)
	if err != nil {
		return nil, core.Configf("eos private key: %v", err)
	}
	return &Signer{account: signing.EOSAccount, key: key}, nil
}

func (s *Signer) Account() string {
	return s.account
}

// Sign returns the SIG_K1_ signature of sha256(order.Pack()). The order's
// account is forced to the signer's.
func (s *Signer) Sign(order Order) (string, error) {
	order.Account = s.account
	packed, err := order.Pack()
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(packed)
	sig, err := s.key.Sign(digest[:])
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
