// Package preset assembles, sponsors and signs ERC-4337 user operations.
//
// Construction moves through explicit stages, each its own type:
//
//	UnsignedOperation -> PresignedOperation -> SponsoredOperation -> SignedOperation
//
// Gas fields may only change while the operation is unsigned; every later
// stage returns a new value instead of mutating its input, so a signature can
// never silently cover stale bytes.
package preset

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zephyrpay/relayer/core/chainio/aa"
	"github.com/zephyrpay/relayer/core/chainio/signer"
	"github.com/zephyrpay/relayer/model"
	"github.com/zephyrpay/relayer/pkg/eip1559"
	"github.com/zephyrpay/relayer/pkg/erc4337/bundler"
	"github.com/zephyrpay/relayer/pkg/erc4337/userop"
	"github.com/zephyrpay/relayer/pkg/logger"
)

// ChainClient is the read surface the builder needs from an RPC node.
// *ethclient.Client satisfies it.
type ChainClient interface {
	bind.ContractCaller
	eip1559.FeeReader
}

// paymasterSigLength is the ECDSA signature tail of paymasterAndData.
const paymasterSigLength = 65

// paymasterAndData layout: paymaster address (20) + abi.encode(uint48,uint48)
// validity window (64) + signature (65) = 149 bytes. The placeholder carries
// zeroes where the signature goes so getHash sees the final length.
var validityWindowArgs = abi.Arguments{
	{Type: abi.Type{T: abi.UintTy, Size: 48}},
	{Type: abi.Type{T: abi.UintTy, Size: 48}},
}

// SponsorshipRequest is a paymaster plus the validity window the sponsorship
// signature covers.
type SponsorshipRequest struct {
	Paymaster  common.Address
	ValidUntil *big.Int
	ValidAfter *big.Int
}

// NewSponsorshipRequest opens a window from now (with clock-drift slack) for
// the given duration.
func NewSponsorshipRequest(paymaster common.Address, duration time.Duration) *SponsorshipRequest {
	// tolerate drift between this service and the bundler's clock
	const skewSeconds int64 = 120
	now := time.Now().Unix()

	return &SponsorshipRequest{
		Paymaster:  paymaster,
		ValidUntil: big.NewInt(now + int64(duration.Seconds())),
		ValidAfter: big.NewInt(now - skewSeconds),
	}
}

// Builder turns wallet + calldata into staged user operations.
type Builder struct {
	client     ChainClient
	entrypoint common.Address
	factory    common.Address
	chainID    *big.Int

	controllerKey *ecdsa.PrivateKey

	callGasLimit         *big.Int
	verificationGasLimit *big.Int
	preVerificationGas   *big.Int

	logger logger.Logger
}

type BuilderConfig struct {
	Client        ChainClient
	Entrypoint    common.Address
	Factory       common.Address
	ChainID       *big.Int
	ControllerKey *ecdsa.PrivateKey

	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int

	Logger logger.Logger
}

func NewBuilder(cfg BuilderConfig) *Builder {
	return &Builder{
		client:               cfg.Client,
		entrypoint:           cfg.Entrypoint,
		factory:              cfg.Factory,
		chainID:              cfg.ChainID,
		controllerKey:        cfg.ControllerKey,
		callGasLimit:         cfg.CallGasLimit,
		verificationGasLimit: cfg.VerificationGasLimit,
		preVerificationGas:   cfg.PreVerificationGas,
		logger:               logger.EnsureLogger(cfg.Logger),
	}
}

// UnsignedOperation is an assembled operation whose gas fields are still
// adjustable. It carries neither sponsorship nor a signature.
type UnsignedOperation struct {
	op *userop.UserOperation
}

// PresignedOperation holds the placeholder paymasterAndData and the owner's
// provisional signature, ready for the paymaster to countersign.
type PresignedOperation struct {
	op  *userop.UserOperation
	req *SponsorshipRequest
}

// SponsoredOperation carries the final paymasterAndData. Its provisional
// owner signature no longer matches the operation hash and must be replaced
// by Sign before submission.
type SponsoredOperation struct {
	op *userop.UserOperation
}

// SignedOperation is final: the signature covers every other field,
// including paymasterAndData.
type SignedOperation struct {
	op *userop.UserOperation
}

// UserOp exposes a copy so callers cannot invalidate the stage.
func (u *UnsignedOperation) UserOp() *userop.UserOperation  { return u.op.Copy() }
func (p *PresignedOperation) UserOp() *userop.UserOperation { return p.op.Copy() }
func (s *SponsoredOperation) UserOp() *userop.UserOperation { return s.op.Copy() }
func (s *SignedOperation) UserOp() *userop.UserOperation    { return s.op.Copy() }

// Assemble builds the unsigned operation for a wallet call: initCode when the
// wallet is not deployed yet, the wallet's entrypoint nonce, current EIP-1559
// fees and the builder's static gas limits.
func (b *Builder) Assemble(ctx context.Context, wallet *model.SmartWallet, callData []byte) (*UnsignedOperation, error) {
	if wallet.Address == nil {
		return nil, fmt.Errorf("wallet has no address")
	}

	initCode := []byte{}
	if !wallet.Deployed {
		var err error
		initCode, err = aa.GetInitCode(b.factory, *wallet.Owner, wallet.Salt)
		if err != nil {
			return nil, fmt.Errorf("failed to build initCode: %w", err)
		}
	}

	nonce, err := aa.GetNonce(ctx, b.client, b.entrypoint, *wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet nonce: %w", err)
	}

	maxFeePerGas, maxPriorityFeePerGas, err := eip1559.SuggestFee(ctx, b.client)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas fees: %w", err)
	}

	op := &userop.UserOperation{
		Sender:   *wallet.Address,
		Nonce:    nonce,
		InitCode: initCode,
		CallData: callData,

		CallGasLimit:         new(big.Int).Set(b.callGasLimit),
		VerificationGasLimit: new(big.Int).Set(b.verificationGasLimit),
		PreVerificationGas:   new(big.Int).Set(b.preVerificationGas),

		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,

		PaymasterAndData: []byte{},
		Signature:        []byte{},
	}

	b.logger.Debug("assembled user operation",
		"sender", op.Sender.Hex(),
		"nonce", op.Nonce.String(),
		"deploying", len(initCode) > 0,
	)

	return &UnsignedOperation{op: op}, nil
}

// EstimateGas asks the bundler for gas limits and returns a new unsigned
// operation carrying them. A failed estimation is returned as an error; the
// caller decides whether to fall back to the static limits.
func (b *Builder) EstimateGas(ctx context.Context, bundlerClient *bundler.BundlerClient, unsigned *UnsignedOperation) (*UnsignedOperation, error) {
	probe := unsigned.op.Copy()
	// the bundler only length-checks the signature during estimation
	probe.Signature, _ = signer.SignMessage(b.controllerKey, common.FromHex("0xdead"))

	gas, err := bundlerClient.EstimateUserOperationGas(ctx, *probe, b.entrypoint)
	if err != nil {
		return nil, fmt.Errorf("bundler gas estimation failed: %w", err)
	}

	op := unsigned.op.Copy()
	op.PreVerificationGas = gas.PreVerificationGas
	op.VerificationGasLimit = gas.VerificationGasLimit
	op.CallGasLimit = gas.CallGasLimit

	return &UnsignedOperation{op: op}, nil
}

// Sign finalizes an unsponsored operation with the controller's EIP-191
// signature over the operation hash.
func (b *Builder) Sign(unsigned *UnsignedOperation) (*SignedOperation, error) {
	op := unsigned.op.Copy()
	return b.signFinal(op)
}

// Presign installs the placeholder paymasterAndData (real address and
// validity window, zeroed signature tail) and the owner's provisional
// signature over the resulting hash. The paymaster contract hashes the
// operation with this exact layout, so length and window must already be
// final here.
func (b *Builder) Presign(unsigned *UnsignedOperation, req *SponsorshipRequest) (*PresignedOperation, error) {
	window, err := validityWindowArgs.Pack(req.ValidUntil, req.ValidAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validity window: %w", err)
	}

	op := unsigned.op.Copy()
	op.PaymasterAndData = append(append(req.Paymaster.Bytes(), window...), make([]byte, paymasterSigLength)...)

	opHash := op.GetUserOpHash(b.entrypoint, b.chainID)
	op.Signature, err = signer.SignMessage(b.controllerKey, opHash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to presign operation: %w", err)
	}

	return &PresignedOperation{op: op, req: req}, nil
}

// Sponsor fetches the paymaster's digest for the presigned operation on
// chain, countersigns it with the paymaster key and splices the signature
// into paymasterAndData.
//
// The VerifyingPaymaster contract wraps getHash() in
// ECDSA.toEthSignedMessageHash during validation, so the digest is signed
// with a single EIP-191 prefix here; prefixing twice produces a signature
// the contract rejects.
func (b *Builder) Sponsor(ctx context.Context, presigned *PresignedOperation, paymasterKey *ecdsa.PrivateKey) (*SponsoredOperation, error) {
	req := presigned.req
	op := presigned.op.Copy()

	digest, err := aa.GetPaymasterHash(ctx, b.client, req.Paymaster, op, req.ValidUntil, req.ValidAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to get paymaster hash: %w", err)
	}

	paymasterSig, err := signer.SignDigest(paymasterKey, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign paymaster hash: %w", err)
	}

	// replace the zeroed tail, keeping address and window bytes intact
	spliceAt := len(op.PaymasterAndData) - paymasterSigLength
	op.PaymasterAndData = append(op.PaymasterAndData[:spliceAt:spliceAt], paymasterSig...)

	b.logger.Debug("sponsored user operation",
		"sender", op.Sender.Hex(),
		"paymaster", req.Paymaster.Hex(),
		"validUntil", req.ValidUntil.String(),
	)

	return &SponsoredOperation{op: op}, nil
}

// SignSponsored re-signs the operation over its final paymasterAndData. The
// provisional signature from Presign is discarded.
func (b *Builder) SignSponsored(sponsored *SponsoredOperation) (*SignedOperation, error) {
	op := sponsored.op.Copy()
	return b.signFinal(op)
}

func (b *Builder) signFinal(op *userop.UserOperation) (*SignedOperation, error) {
	opHash := op.GetUserOpHash(b.entrypoint, b.chainID)

	sig, err := signer.SignMessage(b.controllerKey, opHash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign operation: %w", err)
	}
	op.Signature = sig

	return &SignedOperation{op: op}, nil
}
