package transferengine

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Storage key layout:
//
//	w:<owner>          -> model.SmartWallet
//	tx:<userID>:<ulid> -> model.TransactionRecord
//
// Transaction ids are ULIDs, so a prefix scan over tx:<userID>: yields
// records in creation order.

func WalletStorageKey(owner common.Address) []byte {
	return []byte(fmt.Sprintf("w:%s", strings.ToLower(owner.Hex())))
}

func TransactionStorageKey(userID, txID string) []byte {
	return []byte(fmt.Sprintf("tx:%s:%s", userID, txID))
}

func TransactionsByUserPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("tx:%s:", userID))
}
