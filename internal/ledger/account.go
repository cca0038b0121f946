package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Account is the native state of an address. For contracts the nonce
// counts deployments made by the contract.
type Account struct {
	Balance *big.Int `json:"-"`
	Nonce   uint64   `json:"nonce"`
}

type accountJSON struct {
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// MarshalJSON encodes the balance as a decimal string.
func (a Account) MarshalJSON() ([]byte, error) {
	bal := "0"
	if a.Balance != nil {
		bal = a.Balance.String()
	}
	return json.Marshal(accountJSON{Balance: bal, Nonce: a.Nonce})
}

// UnmarshalJSON decodes an account produced by MarshalJSON.
func (a *Account) UnmarshalJSON(data []byte) error {
	var j accountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	bal, err := types.ParseUnits(j.Balance)
	if err != nil {
		return fmt.Errorf("account balance: %w", err)
	}
	a.Balance = bal
	a.Nonce = j.Nonce
	return nil
}

func accountKey(addr types.Address) []byte {
	return append([]byte("a/"), addr[:]...)
}

func kindKey(addr types.Address) []byte {
	return append([]byte("k/"), addr[:]...)
}

func storageKey(addr types.Address, key []byte) []byte {
	out := make([]byte, 0, 2+types.AddressSize+1+len(key))
	out = append(out, "c/"...)
	out = append(out, addr[:]...)
	out = append(out, '/')
	return append(out, key...)
}
