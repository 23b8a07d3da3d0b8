package eosio

import (
	"encoding/hex"
	"encoding/json"
	"errors"
)

const (
	TokenContract = "eosio.token"
	ActiveAuth    = "active"
)

type PermissionLevel struct {
	Actor      string `json:"actor"`
	Permission string `json:"permission"`
}

// Action is a contract call with its arguments already ABI packed.
type Action struct {
	Account       string            `json:"account"`
	Name          string            `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          []byte            `json:"-"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	type alias Action
	return json.Marshal(struct {
		alias
		Data string `json:"data"`
	}{alias: alias(a), Data: hex.EncodeToString(a.Data)})
}

func (a Action) pack(enc *Encoder) {
	enc.Name(a.Account)
	enc.Name(a.Name)
	enc.Varuint32(uint32(len(a.Authorization)))
	for _, auth := range a.Authorization {
		enc.Name(auth.Actor)
		enc.Name(auth.Permission)
	}
	enc.ByteSlice(a.Data)
}

// Transfer is the eosio.token::transfer payload.
type Transfer struct {
	From     string
	To       string
	Quantity Asset
	Memo     string
}

func (t Transfer) Pack() ([]byte, error) {
	enc := NewEncoder()
	enc.Name(t.From)
	enc.Name(t.To)
	enc.Asset(t.Quantity)
	enc.String(t.Memo)
	if err := enc.Err(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// TransferAction builds the token transfer action authorized by t.From.
func TransferAction(contract string, t Transfer) (Action, error) {
	if t.From == "" || t.To == "" {
		return Action{}, errors.New("transfer from and to are required")
	}
	if t.Quantity.Amount <= 0 {
		return Action{}, errors.New("transfer quantity must be positive")
	}
	data, err := t.Pack()
	if err != nil {
		return Action{}, err
	}
	if contract == "" {
		contract = TokenContract
	}
	return Action{
		Account:       contract,
		Name:          "transfer",
		Authorization: []PermissionLevel{{Actor: t.From, Permission: ActiveAuth}},
		Data:          data,
	}, nil
}
