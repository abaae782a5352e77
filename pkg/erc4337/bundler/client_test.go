package bundler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrpay/relayer/pkg/erc4337/userop"
)

var testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// newBundlerStub runs an httptest server answering one JSON-RPC method and
// records the requests it saw.
func newBundlerStub(t *testing.T, handler func(req rpcRequest) (result interface{}, rpcErr map[string]interface{})) (*BundlerClient, *[]rpcRequest) {
	t.Helper()
	var seen []rpcRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		result, rpcErr := handler(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": json.RawMessage(req.ID)}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	client, err := NewBundlerClient(srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, &seen
}

func testOp() userop.UserOperation {
	return userop.UserOperation{
		Sender:               common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557"),
		Nonce:                big.NewInt(1),
		CallData:             common.FromHex("0xb61d27f6"),
		CallGasLimit:         big.NewInt(200000),
		VerificationGasLimit: big.NewInt(1000000),
		PreVerificationGas:   big.NewInt(50000),
		MaxFeePerGas:         big.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
		Signature:            common.FromHex("0x01"),
	}
}

func TestSendUserOperation(t *testing.T) {
	wantHash := "0x49628fd1471006c1482da88028e9ce4dbb080b815c9b0344d39e5a8e6ec1419f"
	client, seen := newBundlerStub(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return wantHash, nil
	})

	got, err := client.SendUserOperation(context.Background(), testOp(), testEntrypoint)
	require.NoError(t, err)
	assert.Equal(t, wantHash, got)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "eth_sendUserOperation", req.Method)
	require.Len(t, req.Params, 2)

	// operations travel in wire format: hex-string quantities
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Params[0], &wire))
	assert.Equal(t, "0x1", wire["nonce"])
	assert.Equal(t, "0x", wire["initCode"])
	assert.Equal(t, "0xb61d27f6", wire["callData"])

	var epArg string
	require.NoError(t, json.Unmarshal(req.Params[1], &epArg))
	assert.Equal(t, testEntrypoint.Hex(), epArg)
}

func TestSendUserOperation_RPCErrorIsHardFailure(t *testing.T) {
	client, _ := newBundlerStub(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return nil, map[string]interface{}{"code": -32602, "message": "Invalid UserOperation"}
	})

	_, err := client.SendUserOperation(context.Background(), testOp(), testEntrypoint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid UserOperation")
}

func TestEstimateUserOperationGas(t *testing.T) {
	client, seen := newBundlerStub(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return map[string]string{
			"preVerificationGas":   "0xc350",
			"verificationGasLimit": "0xf4240",
			"callGasLimit":         "0x30d40",
		}, nil
	})

	gas, err := client.EstimateUserOperationGas(context.Background(), testOp(), testEntrypoint)
	require.NoError(t, err)

	assert.Equal(t, int64(50000), gas.PreVerificationGas.Int64())
	assert.Equal(t, int64(1000000), gas.VerificationGasLimit.Int64())
	assert.Equal(t, int64(200000), gas.CallGasLimit.Int64())
	assert.Equal(t, "eth_estimateUserOperationGas", (*seen)[0].Method)
}

func TestEstimateUserOperationGas_Error(t *testing.T) {
	client, _ := newBundlerStub(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return nil, map[string]interface{}{"code": -32500, "message": "AA21 didn't pay prefund"}
	})

	_, err := client.EstimateUserOperationGas(context.Background(), testOp(), testEntrypoint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AA21")
}
