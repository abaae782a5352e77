// Package migrations registers the storage migrations in the order they must
// run.
package migrations

import (
	"github.com/zephyrpay/relayer/core/migrator"
)

var Migrations = []migrator.Migration{
	{
		Name:     "20260214-101500-lowercase-wallet-keys",
		Function: LowercaseWalletKeys,
	},
}
