package preset

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/zephyrpay/relayer/core/chainio/aa"
)

type fakeTxClient struct {
	estimateErr error
	sendErr     error
	sentTx      *types.Transaction
}

func (f *fakeTxClient) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(3_000_000_000), nil
}

func (f *fakeTxClient) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (f *fakeTxClient) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return 11, nil
}

func (f *fakeTxClient) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 500_000, nil
}

func (f *fakeTxClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTx = tx
	return nil
}

type fakeRPCError struct {
	msg  string
	data interface{}
}

func (e *fakeRPCError) Error() string          { return e.msg }
func (e *fakeRPCError) ErrorData() interface{} { return e.data }

func failedOpError(t *testing.T, reason string) error {
	t.Helper()

	abiErr, ok := aa.EntrypointABI().Errors["FailedOp"]
	require.True(t, ok)

	payload, err := abi.Arguments(abiErr.Inputs).Pack(big.NewInt(0), reason)
	require.NoError(t, err)

	return &fakeRPCError{
		msg:  "execution reverted",
		data: hexutil.Encode(append(abiErr.ID.Bytes()[:4], payload...)),
	}
}

func signedTestOp(t *testing.T) *SignedOperation {
	t.Helper()
	chain := &fakeChain{nonce: big.NewInt(2)}
	b, _, _ := testBuilder(t, chain)

	unsigned, err := b.Assemble(context.Background(), testWallet(true), []byte{0x01})
	require.NoError(t, err)

	signed, err := b.Sign(unsigned)
	require.NoError(t, err)
	return signed
}

func TestSubmitDirect(t *testing.T) {
	controllerKey, _ := testKeys(t)
	client := &fakeTxClient{}

	sub := NewSubmitter(SubmitterConfig{
		Mode:          ModeDirect,
		Entrypoint:    testEntrypoint,
		ChainID:       testChainID,
		ControllerKey: controllerKey,
		TxClient:      client,
	})

	signed := signedTestOp(t)
	result, err := sub.Submit(context.Background(), signed)
	require.NoError(t, err)

	require.Equal(t, ModeDirect, result.Mode)
	require.NotNil(t, client.sentTx)
	require.Equal(t, result.TxHash, client.sentTx.Hash().Hex())
	require.Equal(t, testEntrypoint, *client.sentTx.To())
	require.Equal(t, uint64(11), client.sentTx.Nonce())
	require.Equal(t, uint64(500_000), client.sentTx.Gas())

	// calldata is handleOps(ops, beneficiary)
	handleOpsID := crypto.Keccak256([]byte("handleOps((address,uint256,bytes,bytes,uint256,uint256,uint256,uint256,uint256,bytes,bytes)[],address)"))[:4]
	require.Equal(t, handleOpsID, client.sentTx.Data()[:4])

	op := signed.UserOp()
	require.Equal(t, op.GetUserOpHash(testEntrypoint, testChainID).Hex(), result.UserOpHash)
}

func TestSubmitDirectDecodesEntrypointRevert(t *testing.T) {
	controllerKey, _ := testKeys(t)
	client := &fakeTxClient{estimateErr: failedOpError(t, "AA21 didn't pay prefund")}

	sub := NewSubmitter(SubmitterConfig{
		Mode:          ModeDirect,
		Entrypoint:    testEntrypoint,
		ChainID:       testChainID,
		ControllerKey: controllerKey,
		TxClient:      client,
	})

	_, err := sub.Submit(context.Background(), signedTestOp(t))
	require.Error(t, err)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.NotNil(t, subErr.Decoded)
	require.Equal(t, "FailedOp", subErr.Decoded.Name)
	require.Contains(t, subErr.Reason, "AA21 didn't pay prefund")
	require.Nil(t, client.sentTx, "nothing must be sent after a failed simulation")
}

func TestSubmitDirectOpaqueSendFailure(t *testing.T) {
	controllerKey, _ := testKeys(t)
	client := &fakeTxClient{sendErr: errors.New("connection refused")}

	sub := NewSubmitter(SubmitterConfig{
		Mode:          ModeDirect,
		Entrypoint:    testEntrypoint,
		ChainID:       testChainID,
		ControllerKey: controllerKey,
		TxClient:      client,
	})

	_, err := sub.Submit(context.Background(), signedTestOp(t))

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Nil(t, subErr.Decoded)
	require.Equal(t, "connection refused", subErr.Reason)
}

func TestSubmitUnknownMode(t *testing.T) {
	controllerKey, _ := testKeys(t)
	sub := NewSubmitter(SubmitterConfig{
		Mode:          SubmissionMode("smoke-signals"),
		Entrypoint:    testEntrypoint,
		ChainID:       testChainID,
		ControllerKey: controllerKey,
	})

	_, err := sub.Submit(context.Background(), signedTestOp(t))
	require.ErrorContains(t, err, "unknown submission mode")
}
