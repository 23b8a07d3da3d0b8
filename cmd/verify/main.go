// Command verify signs a sample WhaleEx order and a sample Newdex transfer
// offline and checks that both signatures recover to the configured key.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"crypto-client/internal/config"
	"crypto-client/internal/core"
	"crypto-client/internal/eosio"
	"crypto-client/internal/venue/newdex"
	"crypto-client/internal/venue/whaleex"

	"github.com/shopspring/decimal"
)

const defaultVerifyEnvFile = ".env"

// samplePair is the EIDOS/EOS market on both EOS venues.
var samplePair = core.TradingPair{
	Normalized:     "EIDOS_EOS",
	Raw:            "eidosonecoin-eidos-eos",
	BaseSymbol:     "EIDOS",
	QuoteSymbol:    "EOS",
	BaseContract:   "eidosonecoin",
	QuoteContract:  eosio.TokenContract,
	BasePrecision:  4,
	QuotePrecision: 4,
	PricePrecision: 8,
}

type report struct {
	Account     string       `json:"account"`
	PublicKey   string       `json:"public_key"`
	WhaleEx     signedSample `json:"whaleex"`
	Newdex      signedSample `json:"newdex"`
	Transaction string       `json:"transaction_id"`
}

type signedSample struct {
	Packed    string `json:"packed"`
	Signature string `json:"signature"`
	Recovered string `json:"recovered"`
	OK        bool   `json:"ok"`
}

func main() {
	envFile := flag.String("env", defaultVerifyEnvFile, "optional .env file")
	chainID := flag.String("chain-id", config.EOSMainnetChainID, "chain id used for the transaction digest")
	price := flag.String("price", "0.00121", "sample order price")
	quantity := flag.String("quantity", "9.2644", "sample order quantity")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fatal(err)
	}
	sc := core.SigningContext{
		EOSAccount:    strings.TrimSpace(os.Getenv("EOS_ACCOUNT")),
		EOSPrivateKey: strings.TrimSpace(os.Getenv("EOS_PRIVATE_KEY")),
	}
	if err := sc.RequireEOS(); err != nil {
		fatal(err)
	}
	key, err := eosio.ParsePrivateKey(sc.EOSPrivateKey)
	if err != nil {
		fatal(err)
	}
	p, err := decimal.NewFromString(*price)
	if err != nil {
		fatal(fmt.Errorf("price: %w", err))
	}
	q, err := decimal.NewFromString(*quantity)
	if err != nil {
		fatal(fmt.Errorf("quantity: %w", err))
	}

	out := report{Account: sc.EOSAccount, PublicKey: key.PublicKey().String()}
	out.WhaleEx, err = verifyWhaleEx(sc, key.PublicKey(), p, q)
	if err != nil {
		fatal(err)
	}
	out.Newdex, out.Transaction, err = verifyNewdex(sc.EOSAccount, key, *chainID, p, q)
	if err != nil {
		fatal(err)
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(pretty))
	if !out.WhaleEx.OK || !out.Newdex.OK {
		fatal(errors.New("signature self-check failed"))
	}
}

func verifyWhaleEx(sc core.SigningContext, pub eosio.PublicKey, price, quantity decimal.Decimal) (signedSample, error) {
	signer, err := whaleex.NewSigner(sc)
	if err != nil {
		return signedSample{}, err
	}
	order := whaleex.Order{
		Account:   signer.Account(),
		OrderID:   1,
		Timestamp: time.Unix(1700000000, 0),
		Type:      whaleex.BuyLimit,
		Pair:      samplePair,
		Price:     price,
		Quantity:  quantity,
	}
	packed, err := order.Pack()
	if err != nil {
		return signedSample{}, err
	}
	sigText, err := signer.Sign(order)
	if err != nil {
		return signedSample{}, err
	}
	digest := sha256.Sum256(packed)
	return recoverSample(packed, sigText, digest[:], pub)
}

func verifyNewdex(account string, key *eosio.PrivateKey, chainID string, price, quantity decimal.Decimal) (signedSample, string, error) {
	transfer, err := newdex.BuildOrder(account, samplePair, price, quantity, core.Buy, "")
	if err != nil {
		return signedSample{}, "", err
	}
	action, err := transfer.Action()
	if err != nil {
		return signedSample{}, "", err
	}
	tx := eosio.Transaction{
		Expiration: time.Unix(1700000000, 0).Add(eosio.DefaultExpiration),
		Actions:    []eosio.Action{action},
	}
	signed, _, err := eosio.SignTransaction(tx, chainID, key)
	if err != nil {
		return signedSample{}, "", err
	}
	packed, err := hex.DecodeString(signed.PackedTrx)
	if err != nil {
		return signedSample{}, "", err
	}
	chain, err := hex.DecodeString(chainID)
	if err != nil {
		return signedSample{}, "", err
	}
	sample, err := recoverSample(packed, signed.Signatures[0], eosio.SigningDigest(chain, packed), key.PublicKey())
	return sample, eosio.TransactionID(packed), err
}

func recoverSample(packed []byte, sigText string, digest []byte, want eosio.PublicKey) (signedSample, error) {
	sig, err := eosio.ParseSignature(sigText)
	if err != nil {
		return signedSample{}, err
	}
	got, err := sig.Recover(digest)
	if err != nil {
		return signedSample{}, err
	}
	return signedSample{
		Packed:    hex.EncodeToString(packed),
		Signature: sigText,
		Recovered: got.String(),
		OK:        got.Equal(want),
	}, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
