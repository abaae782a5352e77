package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	testChainID    = big.NewInt(11155111)
)

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557"),
		Nonce:                big.NewInt(7),
		InitCode:             []byte{},
		CallData:             common.FromHex("0xb61d27f6"),
		CallGasLimit:         big.NewInt(200000),
		VerificationGasLimit: big.NewInt(1000000),
		PreVerificationGas:   big.NewInt(50000),
		MaxFeePerGas:         big.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}
}

func TestGetUserOpHash_Deterministic(t *testing.T) {
	op := sampleOp()

	h1 := op.GetUserOpHash(testEntrypoint, testChainID)
	h2 := op.GetUserOpHash(testEntrypoint, testChainID)

	assert.Equal(t, h1, h2, "hashing the same operation twice must be stable")
	assert.NotEqual(t, common.Hash{}, h1)
}

func TestGetUserOpHash_SignatureExcluded(t *testing.T) {
	op := sampleOp()
	before := op.GetUserOpHash(testEntrypoint, testChainID)

	op.Signature = common.FromHex("0xdeadbeef")
	after := op.GetUserOpHash(testEntrypoint, testChainID)

	assert.Equal(t, before, after, "signature must not be part of the hash")
}

func TestGetUserOpHash_EveryOtherFieldChangesHash(t *testing.T) {
	base := sampleOp().GetUserOpHash(testEntrypoint, testChainID)

	mutations := map[string]func(op *UserOperation){
		"sender":               func(op *UserOperation) { op.Sender = common.HexToAddress("0x01") },
		"nonce":                func(op *UserOperation) { op.Nonce = big.NewInt(8) },
		"initCode":             func(op *UserOperation) { op.InitCode = []byte{0x01} },
		"callData":             func(op *UserOperation) { op.CallData = []byte{0x02} },
		"callGasLimit":         func(op *UserOperation) { op.CallGasLimit = big.NewInt(1) },
		"verificationGasLimit": func(op *UserOperation) { op.VerificationGasLimit = big.NewInt(1) },
		"preVerificationGas":   func(op *UserOperation) { op.PreVerificationGas = big.NewInt(1) },
		"maxFeePerGas":         func(op *UserOperation) { op.MaxFeePerGas = big.NewInt(1) },
		"maxPriorityFeePerGas": func(op *UserOperation) { op.MaxPriorityFeePerGas = big.NewInt(1) },
		"paymasterAndData":     func(op *UserOperation) { op.PaymasterAndData = []byte{0x03} },
	}

	for field, mutate := range mutations {
		op := sampleOp()
		mutate(op)
		assert.NotEqual(t, base, op.GetUserOpHash(testEntrypoint, testChainID),
			"changing %s must change the hash", field)
	}
}

func TestGetUserOpHash_DomainBinding(t *testing.T) {
	op := sampleOp()

	base := op.GetUserOpHash(testEntrypoint, testChainID)
	otherEntrypoint := op.GetUserOpHash(common.HexToAddress("0x0576a174D229E3cFA37253523E645A78A0C91B57"), testChainID)
	otherChain := op.GetUserOpHash(testEntrypoint, big.NewInt(1))

	assert.NotEqual(t, base, otherEntrypoint)
	assert.NotEqual(t, base, otherChain)
}

func TestPackForSignature_EmptyBytesHashToEmptyStringHash(t *testing.T) {
	op := sampleOp()
	op.InitCode = nil
	op.CallData = nil
	op.PaymasterAndData = nil

	packed, err := op.PackForSignature()
	require.NoError(t, err)

	emptyHash := crypto.Keccak256Hash(nil)
	// sender(32) + nonce(32) = 64; hashInitCode occupies [64:96]
	assert.Equal(t, emptyHash.Bytes(), packed[64:96], "empty initCode must pack as keccak of empty string")
	// hashCallData occupies [96:128]
	assert.Equal(t, emptyHash.Bytes(), packed[96:128])
	// hashPaymasterAndData is the last word
	assert.Equal(t, emptyHash.Bytes(), packed[len(packed)-32:])
}

func TestCopy_IsDeep(t *testing.T) {
	op := sampleOp()
	dup := op.Copy()

	dup.Nonce.SetInt64(99)
	dup.CallData[0] = 0xff

	assert.Equal(t, int64(7), op.Nonce.Int64())
	assert.Equal(t, byte(0xb6), op.CallData[0])
}

func TestToWireFormat(t *testing.T) {
	op := sampleOp()
	wire := op.ToWireFormat()

	assert.Equal(t, "0x7", wire.Nonce)
	assert.Equal(t, "0x", wire.InitCode)
	assert.Equal(t, "0xb61d27f6", wire.CallData)
	assert.Equal(t, "0x30d40", wire.CallGasLimit)
}
