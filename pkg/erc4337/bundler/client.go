// Package bundler is a thin client for the stateless ERC-4337 bundler RPC
// surface: eth_sendUserOperation, eth_estimateUserOperationGas and the
// receipt lookups.
package bundler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/zephyrpay/relayer/pkg/erc4337/userop"
)

// BundlerClient talks to one bundler endpoint. Safe for concurrent use; the
// underlying rpc.Client pools connections.
type BundlerClient struct {
	client *rpc.Client
	url    string
}

// NewBundlerClient connects to the given URL. DialHTTP keeps compatibility
// with plain-HTTP bundler endpoints while still supporting WebSocket URLs.
func NewBundlerClient(url string) (*BundlerClient, error) {
	c, err := rpc.DialHTTP(url)
	if err != nil {
		return nil, fmt.Errorf("create bundler client for %s: %w", url, err)
	}
	return &BundlerClient{client: c, url: url}, nil
}

func (bc *BundlerClient) Close() {
	bc.client.Close()
}

// URL returns the endpoint this client was dialed against.
func (bc *BundlerClient) URL() string {
	return bc.url
}

// SendUserOperation submits a fully signed operation. The returned string is
// the userOp hash the bundler tracks it under, not a transaction hash. Any
// RPC-level error is a hard failure: the bundler rejected the operation and
// resubmitting the identical payload will not change its mind.
func (bc *BundlerClient) SendUserOperation(ctx context.Context, op userop.UserOperation, entrypoint common.Address) (string, error) {
	var userOpHash string
	err := bc.client.CallContext(ctx, &userOpHash, "eth_sendUserOperation", op.ToWireFormat(), entrypoint.Hex())
	if err != nil {
		return "", err
	}
	return userOpHash, nil
}

// EstimateUserOperationGas asks the bundler for gas limits. The signature
// field only needs the right length, not validity; callers put a dummy
// signature on the operation before estimating.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
func (bc *BundlerClient) EstimateUserOperationGas(ctx context.Context, op userop.UserOperation, entrypoint common.Address) (*GasEstimation, error) {
	var result struct {
		PreVerificationGas   string `json:"preVerificationGas"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		CallGasLimit         string `json:"callGasLimit"`
	}

	err := bc.client.CallContext(ctx, &result, "eth_estimateUserOperationGas", op.ToWireFormat(), entrypoint.Hex())
	if err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: %w", err)
	}

	preVerificationGas, err := hexutil.DecodeBig(result.PreVerificationGas)
	if err != nil {
		return nil, fmt.Errorf("decode preVerificationGas %q: %w", result.PreVerificationGas, err)
	}
	verificationGasLimit, err := hexutil.DecodeBig(result.VerificationGasLimit)
	if err != nil {
		return nil, fmt.Errorf("decode verificationGasLimit %q: %w", result.VerificationGasLimit, err)
	}
	callGasLimit, err := hexutil.DecodeBig(result.CallGasLimit)
	if err != nil {
		return nil, fmt.Errorf("decode callGasLimit %q: %w", result.CallGasLimit, err)
	}

	return &GasEstimation{
		PreVerificationGas:   preVerificationGas,
		VerificationGasLimit: verificationGasLimit,
		CallGasLimit:         callGasLimit,
	}, nil
}

// GetUserOperationReceipt fetches the receipt of a submitted operation, nil
// result when the bundler hasn't included it yet.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, hash string) (map[string]interface{}, error) {
	var receipt map[string]interface{}
	err := bc.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash)
	return receipt, err
}
