// Package userop holds the ERC-4337 v0.6 UserOperation envelope and its
// canonical hash. The byte layout here must match EntryPoint.getUserOpHash
// exactly or the on-chain signature check rejects the operation.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is the account-abstraction envelope submitted on behalf of a
// smart wallet owner. Field order matters: it mirrors the struct the
// EntryPoint and paymaster contracts ABI-decode.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	packArgs = abi.Arguments{
		{Name: "sender", Type: addressT},
		{Name: "nonce", Type: uint256T},
		{Name: "hashInitCode", Type: bytes32T},
		{Name: "hashCallData", Type: bytes32T},
		{Name: "callGasLimit", Type: uint256T},
		{Name: "verificationGasLimit", Type: uint256T},
		{Name: "preVerificationGas", Type: uint256T},
		{Name: "maxFeePerGas", Type: uint256T},
		{Name: "maxPriorityFeePerGas", Type: uint256T},
		{Name: "hashPaymasterAndData", Type: bytes32T},
	}

	hashArgs = abi.Arguments{
		{Name: "userOpHash", Type: bytes32T},
		{Name: "entryPoint", Type: addressT},
		{Name: "chainId", Type: uint256T},
	}
)

// PackForSignature ABI-encodes the operation the way EntryPoint v0.6 hashes
// it: dynamic byte fields collapse to their keccak256, the signature is
// excluded entirely. Empty InitCode/CallData/PaymasterAndData hash to
// keccak256("") — not a sentinel — matching the on-chain implementation.
func (op *UserOperation) PackForSignature() ([]byte, error) {
	return packArgs.Pack(
		op.Sender,
		op.Nonce,
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		op.CallGasLimit,
		op.VerificationGasLimit,
		op.PreVerificationGas,
		op.MaxFeePerGas,
		op.MaxPriorityFeePerGas,
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
}

// GetUserOpHash returns the hash the wallet owner signs, bound to the
// entrypoint address and chain id so a signature cannot be replayed against
// another entrypoint or chain.
func (op *UserOperation) GetUserOpHash(entrypoint common.Address, chainID *big.Int) common.Hash {
	packed, err := op.PackForSignature()
	if err != nil {
		// The argument set is static; Pack only fails on a type mismatch,
		// which would be a programming error.
		panic(err)
	}

	enc, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entrypoint, chainID)
	if err != nil {
		panic(err)
	}

	return crypto.Keccak256Hash(enc)
}

// Copy returns a deep copy so a later assembly stage can replace
// PaymasterAndData or Signature without mutating an already-hashed value.
func (op *UserOperation) Copy() *UserOperation {
	dup := *op
	dup.Nonce = cloneBig(op.Nonce)
	dup.CallGasLimit = cloneBig(op.CallGasLimit)
	dup.VerificationGasLimit = cloneBig(op.VerificationGasLimit)
	dup.PreVerificationGas = cloneBig(op.PreVerificationGas)
	dup.MaxFeePerGas = cloneBig(op.MaxFeePerGas)
	dup.MaxPriorityFeePerGas = cloneBig(op.MaxPriorityFeePerGas)
	dup.InitCode = append([]byte(nil), op.InitCode...)
	dup.CallData = append([]byte(nil), op.CallData...)
	dup.PaymasterAndData = append([]byte(nil), op.PaymasterAndData...)
	dup.Signature = append([]byte(nil), op.Signature...)
	return &dup
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// WireFormat is the JSON shape bundler RPC endpoints expect: every quantity
// and byte field is a 0x-prefixed hex string.
type WireFormat struct {
	Sender               common.Address `json:"sender"`
	Nonce                string         `json:"nonce"`
	InitCode             string         `json:"initCode"`
	CallData             string         `json:"callData"`
	CallGasLimit         string         `json:"callGasLimit"`
	VerificationGasLimit string         `json:"verificationGasLimit"`
	PreVerificationGas   string         `json:"preVerificationGas"`
	MaxFeePerGas         string         `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string         `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string         `json:"paymasterAndData"`
	Signature            string         `json:"signature"`
}

// ToWireFormat converts for bundler submission.
func (op *UserOperation) ToWireFormat() WireFormat {
	return WireFormat{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		InitCode:             hexutil.Encode(op.InitCode),
		CallData:             hexutil.Encode(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     hexutil.Encode(op.PaymasterAndData),
		Signature:            hexutil.Encode(op.Signature),
	}
}

func hexBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}
