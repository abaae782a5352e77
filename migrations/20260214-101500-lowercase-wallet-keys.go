package migrations

import (
	"strings"

	"github.com/zephyrpay/relayer/storage"
)

// LowercaseWalletKeys rewrites wallet keys written by early builds that used
// the checksummed owner address in the key. Lookups lowercase the owner, so
// those wallets were unreachable until rewritten.
func LowercaseWalletKeys(db storage.Storage) (int, error) {
	items, err := db.GetByPrefix([]byte("w:"))
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, item := range items {
		key := string(item.Key)
		lowered := strings.ToLower(key)
		if key == lowered {
			continue
		}

		if err := db.Set([]byte(lowered), item.Value); err != nil {
			return updated, err
		}
		if err := db.Delete(item.Key); err != nil {
			return updated, err
		}
		updated++
	}

	return updated, nil
}
