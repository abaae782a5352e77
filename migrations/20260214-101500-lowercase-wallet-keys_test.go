package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zephyrpay/relayer/storage"
)

func TestLowercaseWalletKeys(t *testing.T) {
	db, err := storage.NewWithPath(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("w:0xAbCdEf"), []byte("legacy")))
	require.NoError(t, db.Set([]byte("w:0xaabbcc"), []byte("already-lowered")))
	require.NoError(t, db.Set([]byte("tx:user:01"), []byte("untouched")))

	updated, err := LowercaseWalletKeys(db)
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	body, err := db.GetKey([]byte("w:0xabcdef"))
	require.NoError(t, err)
	require.Equal(t, []byte("legacy"), body)

	exists, err := db.Exist([]byte("w:0xAbCdEf"))
	require.NoError(t, err)
	require.False(t, exists)

	body, err = db.GetKey([]byte("tx:user:01"))
	require.NoError(t, err)
	require.Equal(t, []byte("untouched"), body)
}
