// Package aa wraps the read-only chain queries and calldata packing the
// relayer needs around ERC-4337 smart wallets: counterfactual address
// derivation through the factory, EntryPoint nonce lookup, and packing of the
// account's execute calldata.
package aa

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zephyrpay/relayer/pkg/erc4337/userop"
)

// nonce key 0 is the sequential namespace every wallet starts in
var defaultNonceKey = big.NewInt(0)

// Addresses carries the protocol contract addresses, loaded from config and
// passed explicitly so no package-level state leaks between chains.
type Addresses struct {
	EntryPoint common.Address
	Factory    common.Address
	Paymaster  common.Address
}

func callView(ctx context.Context, caller bind.ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, err
	}

	return parsed.Unpack(method, out)
}

// GetSenderAddress asks the factory for the counterfactual wallet address of
// (owner, salt). This is a view call: nothing is deployed.
func GetSenderAddress(ctx context.Context, caller bind.ContractCaller, factory, owner common.Address, salt *big.Int) (common.Address, error) {
	out, err := callView(ctx, caller, factory, factoryABI, "getAddress", owner, salt)
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress: %w", err)
	}

	return out[0].(common.Address), nil
}

// GetInitCode returns factory address || createAccount(owner, salt) calldata,
// the initCode a UserOperation carries when the wallet is not yet deployed.
func GetInitCode(factory, owner common.Address, salt *big.Int) ([]byte, error) {
	calldata, err := factoryABI.Pack("createAccount", owner, salt)
	if err != nil {
		return nil, fmt.Errorf("pack createAccount: %w", err)
	}

	initCode := make([]byte, 0, common.AddressLength+len(calldata))
	initCode = append(initCode, factory.Bytes()...)
	initCode = append(initCode, calldata...)
	return initCode, nil
}

// GetNonce reads the wallet's current replay counter from the EntryPoint.
// The chain is the authority here: nonces are never cached client-side.
func GetNonce(ctx context.Context, caller bind.ContractCaller, entrypoint, sender common.Address) (*big.Int, error) {
	out, err := callView(ctx, caller, entrypoint, entrypointABI, "getNonce", sender, defaultNonceKey)
	if err != nil {
		return nil, fmt.Errorf("entrypoint getNonce: %w", err)
	}

	return out[0].(*big.Int), nil
}

// PackExecute generates the SimpleAccount execute(dest, value, data) calldata
// that wraps the actual action a UserOperation performs.
func PackExecute(target common.Address, ethValue *big.Int, calldata []byte) ([]byte, error) {
	if calldata == nil {
		// the ABI encoder mis-handles nil dynamic bytes
		calldata = make([]byte, 0)
	}
	return accountABI.Pack("execute", target, ethValue, calldata)
}

// PackERC20Transfer generates transfer(to, amount) calldata for a token
// contract; callers wrap it in PackExecute.
func PackERC20Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

// PackHandleOps generates EntryPoint handleOps calldata for direct submission
// of a bundle signed by the relayer's own key.
func PackHandleOps(ops []userop.UserOperation, beneficiary common.Address) ([]byte, error) {
	return entrypointABI.Pack("handleOps", ops, beneficiary)
}

// GetPaymasterHash delegates hash computation to the paymaster contract's own
// getHash view function. The sponsor contract is the authority on what it
// signs off; recomputing the hash locally risks drifting from its storage
// (it mixes in its per-sender nonce).
func GetPaymasterHash(ctx context.Context, caller bind.ContractCaller, paymaster common.Address, op *userop.UserOperation, validUntil, validAfter *big.Int) ([32]byte, error) {
	out, err := callView(ctx, caller, paymaster, paymasterABI, "getHash", *op, validUntil, validAfter)
	if err != nil {
		return [32]byte{}, fmt.Errorf("paymaster getHash: %w", err)
	}

	return out[0].([32]byte), nil
}

// GetPaymasterDeposit reads the sponsor's remaining EntryPoint deposit.
func GetPaymasterDeposit(ctx context.Context, caller bind.ContractCaller, paymaster common.Address) (*big.Int, error) {
	out, err := callView(ctx, caller, paymaster, paymasterABI, "getDeposit")
	if err != nil {
		return nil, fmt.Errorf("paymaster getDeposit: %w", err)
	}

	return out[0].(*big.Int), nil
}
