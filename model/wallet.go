package model

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// User ties an application-level identifier to the EOA that owns the smart
// wallet.
type User struct {
	ID      string         `json:"id"`
	Address common.Address `json:"address"`
}

// SmartWallet is a user's mapping to their ERC-4337 account. Address and Salt
// are fixed at derivation time; Deployed flips to true exactly once, after
// the first successful submission that carried initCode.
type SmartWallet struct {
	Owner    *common.Address `json:"owner"`
	Address  *common.Address `json:"address"`
	Salt     *big.Int        `json:"salt"`
	Deployed bool            `json:"deployed"`
}

func (w *SmartWallet) ToJSON() ([]byte, error) {
	return json.Marshal(w)
}

func (w *SmartWallet) FromStorageData(body []byte) error {
	return json.Unmarshal(body, w)
}
