package preset

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zephyrpay/relayer/core/chainio/aa"
	"github.com/zephyrpay/relayer/core/chainio/revert"
	"github.com/zephyrpay/relayer/core/chainio/signer"
	"github.com/zephyrpay/relayer/pkg/eip1559"
	"github.com/zephyrpay/relayer/pkg/erc4337/bundler"
	"github.com/zephyrpay/relayer/pkg/erc4337/userop"
	"github.com/zephyrpay/relayer/pkg/logger"
)

// SubmissionMode selects the path a signed operation takes to the entrypoint.
type SubmissionMode string

const (
	// ModeDirect calls handleOps from the controller EOA.
	ModeDirect = SubmissionMode("direct")
	// ModeBundler relays through an ERC-4337 bundler RPC.
	ModeBundler = SubmissionMode("bundler")
)

// TxClient is the write surface direct submission needs from an RPC node.
// *ethclient.Client satisfies it.
type TxClient interface {
	eip1559.FeeReader
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// SubmissionError is a submission failure with the provider's revert reason
// attached. Decoded is non-nil when the revert data matched a known
// entrypoint error such as FailedOp.
type SubmissionError struct {
	Reason  string
	Decoded *revert.DecodedError
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Decoded != nil {
		return fmt.Sprintf("submission rejected: %s", e.Decoded.String())
	}
	return fmt.Sprintf("submission failed: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// SubmissionResult reports where the operation went. UserOpHash is always
// set; TxHash only in direct mode, where we produced the transaction
// ourselves.
type SubmissionResult struct {
	UserOpHash string
	TxHash     string
	Mode       SubmissionMode
}

// Submitter sends signed operations to the entrypoint.
type Submitter struct {
	mode       SubmissionMode
	entrypoint common.Address
	chainID    *big.Int

	controllerKey *ecdsa.PrivateKey

	txClient      TxClient
	bundlerClient *bundler.BundlerClient

	logger logger.Logger
}

type SubmitterConfig struct {
	Mode          SubmissionMode
	Entrypoint    common.Address
	ChainID       *big.Int
	ControllerKey *ecdsa.PrivateKey
	TxClient      TxClient
	BundlerClient *bundler.BundlerClient
	Logger        logger.Logger
}

func NewSubmitter(cfg SubmitterConfig) *Submitter {
	return &Submitter{
		mode:          cfg.Mode,
		entrypoint:    cfg.Entrypoint,
		chainID:       cfg.ChainID,
		controllerKey: cfg.ControllerKey,
		txClient:      cfg.TxClient,
		bundlerClient: cfg.BundlerClient,
		logger:        logger.EnsureLogger(cfg.Logger),
	}
}

// Submit sends the operation and returns its identifiers. Any provider error
// comes back as a *SubmissionError carrying the decoded revert when the
// payload matched a known entrypoint error.
func (s *Submitter) Submit(ctx context.Context, signed *SignedOperation) (*SubmissionResult, error) {
	op := signed.UserOp()
	opHash := op.GetUserOpHash(s.entrypoint, s.chainID)

	switch s.mode {
	case ModeBundler:
		hash, err := s.bundlerClient.SendUserOperation(ctx, *op, s.entrypoint)
		if err != nil {
			return nil, s.classify(err)
		}

		s.logger.Info("user operation sent to bundler",
			"userOpHash", hash,
			"sender", op.Sender.Hex(),
			"nonce", op.Nonce.String(),
		)

		return &SubmissionResult{UserOpHash: hash, Mode: ModeBundler}, nil

	case ModeDirect:
		return s.submitDirect(ctx, signed, opHash.Hex())

	default:
		return nil, fmt.Errorf("unknown submission mode %q", s.mode)
	}
}

func (s *Submitter) submitDirect(ctx context.Context, signed *SignedOperation, opHash string) (*SubmissionResult, error) {
	op := signed.UserOp()
	beneficiary := signer.Address(s.controllerKey)

	callData, err := aa.PackHandleOps([]userop.UserOperation{*op}, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to pack handleOps: %w", err)
	}

	nonce, err := s.txClient.PendingNonceAt(ctx, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch controller nonce: %w", err)
	}

	maxFeePerGas, maxPriorityFeePerGas, err := eip1559.SuggestFee(ctx, s.txClient)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas fees: %w", err)
	}

	// estimation also simulates handleOps, so entrypoint reverts surface here
	gasLimit, err := s.txClient.EstimateGas(ctx, ethereum.CallMsg{
		From: beneficiary,
		To:   &s.entrypoint,
		Data: callData,
	})
	if err != nil {
		return nil, s.classify(err)
	}

	tx, err := types.SignNewTx(s.controllerKey, types.LatestSignerForChainID(s.chainID), &types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: maxPriorityFeePerGas,
		GasFeeCap: maxFeePerGas,
		Gas:       gasLimit,
		To:        &s.entrypoint,
		Data:      callData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign handleOps transaction: %w", err)
	}

	if err := s.txClient.SendTransaction(ctx, tx); err != nil {
		return nil, s.classify(err)
	}

	s.logger.Info("handleOps transaction sent",
		"txHash", tx.Hash().Hex(),
		"userOpHash", opHash,
		"sender", op.Sender.Hex(),
	)

	return &SubmissionResult{
		UserOpHash: opHash,
		TxHash:     tx.Hash().Hex(),
		Mode:       ModeDirect,
	}, nil
}

func (s *Submitter) classify(err error) *SubmissionError {
	reason, decoded := revert.ClassifyProviderError(aa.EntrypointABI(), err)

	if decoded != nil {
		s.logger.Error("submission reverted", "revert", decoded.String())
	} else {
		s.logger.Error("submission failed", "reason", reason)
	}

	return &SubmissionError{Reason: reason, Decoded: decoded, Err: err}
}
