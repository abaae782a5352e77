// Package transferengine drives the transfer pipeline: wallet resolution,
// calldata construction, operation assembly and sponsorship, submission, and
// the persisted transaction history behind it.
package transferengine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/zephyrpay/relayer/core/config"
	"github.com/zephyrpay/relayer/metrics"
	"github.com/zephyrpay/relayer/model"
	"github.com/zephyrpay/relayer/pkg/erc4337/bundler"
	"github.com/zephyrpay/relayer/pkg/erc4337/preset"
	"github.com/zephyrpay/relayer/pkg/logger"
	"github.com/zephyrpay/relayer/storage"
)

// sponsorshipValidity is how long a paymaster signature stays usable.
const sponsorshipValidity = 15 * time.Minute

// TransferRequest is one user-initiated payment.
type TransferRequest struct {
	Recipient common.Address
	Amount    decimal.Decimal
	Currency  string
}

// Engine executes transfers. One Engine serves all users; per-wallet locks
// keep operations for the same wallet sequential so entrypoint nonces never
// race.
type Engine struct {
	db      storage.Storage
	chain   bind.ContractCaller
	builder *preset.Builder
	sender  *preset.Submitter

	bundlerClient *bundler.BundlerClient

	factory common.Address
	chainID int64
	mode    preset.SubmissionMode
	tokens  map[string]config.TokenInfo

	sponsorshipEnabled bool
	paymaster          common.Address
	paymasterKey       *ecdsa.PrivateKey

	explorerLink func(txHash string) string

	confirmationTimeout time.Duration
	confirmationPoll    time.Duration

	metrics metrics.MetricsGenerator
	logger  logger.Logger

	lock        sync.Mutex
	walletLocks map[common.Address]*sync.Mutex
}

type EngineConfig struct {
	DB      storage.Storage
	Chain   bind.ContractCaller
	Builder *preset.Builder
	Sender  *preset.Submitter

	BundlerClient *bundler.BundlerClient

	Config *config.Config

	Metrics metrics.MetricsGenerator
	Logger  logger.Logger
}

func New(cfg EngineConfig) *Engine {
	m := cfg.Metrics
	if m == nil {
		m = metrics.NoopMetrics{}
	}

	return &Engine{
		db:            cfg.DB,
		chain:         cfg.Chain,
		builder:       cfg.Builder,
		sender:        cfg.Sender,
		bundlerClient: cfg.BundlerClient,

		factory: cfg.Config.FactoryAddress,
		chainID: cfg.Config.ChainID.Int64(),
		mode:    preset.SubmissionMode(cfg.Config.SubmissionMode),
		tokens:  cfg.Config.Tokens,

		sponsorshipEnabled: cfg.Config.SponsorshipEnabled(),
		paymaster:          cfg.Config.PaymasterAddress,
		paymasterKey:       cfg.Config.PaymasterPrivateKey,

		explorerLink: cfg.Config.ExplorerLink,

		confirmationTimeout: 30 * time.Second,
		confirmationPoll:    time.Second,

		metrics: m,
		logger:  logger.EnsureLogger(cfg.Logger),

		walletLocks: map[common.Address]*sync.Mutex{},
	}
}

// Transfer runs the full pipeline and returns the persisted record. The
// record is also returned on failure, with status failed and the revert
// reason in its metadata.
func (e *Engine) Transfer(ctx context.Context, user *model.User, req *TransferRequest) (*model.TransactionRecord, error) {
	wallet, err := e.GetOrCreateWallet(ctx, user)
	if err != nil {
		return nil, err
	}

	callData, err := BuildTransferCallData(e.tokens, req.Recipient, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	unlock := e.lockWallet(*wallet.Address)
	defer unlock()

	record := &model.TransactionRecord{
		ID:       model.GenerateTransactionID(),
		UserID:   user.ID,
		Sender:   wallet.Address.Hex(),
		Receiver: req.Recipient.Hex(),
		Amount:   req.Amount.String(),
		Currency: req.Currency,
		Type:     model.TxTypeDebit,
		Status:   model.TxStatusInitiated,
		Metadata: model.TransactionMetadata{ChainID: e.chainID},
	}
	if err := e.saveRecord(record); err != nil {
		return nil, err
	}

	signed, err := e.buildAndSign(ctx, wallet, callData)
	if err != nil {
		return e.failRecord(record, err.Error()), err
	}

	result, err := e.sender.Submit(ctx, signed)
	if err != nil {
		reason := err.Error()
		var subErr *preset.SubmissionError
		if errors.As(err, &subErr) {
			reason = subErr.Reason
		}
		e.metrics.IncSubmission(string(e.mode), "failed")
		return e.failRecord(record, reason), err
	}
	e.metrics.IncSubmission(string(result.Mode), "sent")

	record.Metadata.UserOpHash = result.UserOpHash
	record.Metadata.TxHash = result.TxHash
	if result.TxHash != "" {
		record.Metadata.ExplorerLink = e.explorerLink(result.TxHash)
	}
	if err := record.MarkStatus(model.TxStatusPending); err != nil {
		return record, err
	}
	if err := e.saveRecord(record); err != nil {
		return record, err
	}

	// in direct mode the wallet is on chain once handleOps simulation and
	// submission both passed; in bundler mode acceptance into the mempool
	// proves nothing, so the flip waits for the confirmed receipt
	deploying := !wallet.Deployed
	if deploying && result.Mode == preset.ModeDirect {
		if err := e.markWalletDeployed(wallet); err != nil {
			return record, err
		}
	}

	if result.Mode == preset.ModeBundler {
		var deployingWallet *model.SmartWallet
		if deploying {
			deployingWallet = wallet
		}
		goSafe(func() { e.ConfirmTransaction(context.Background(), record, deployingWallet) })
	}

	return record, nil
}

func (e *Engine) buildAndSign(ctx context.Context, wallet *model.SmartWallet, callData []byte) (*preset.SignedOperation, error) {
	unsigned, err := e.builder.Assemble(ctx, wallet, callData)
	if err != nil {
		return nil, err
	}

	// bundler estimates are preferred; the static limits stay as fallback
	if e.bundlerClient != nil {
		estimated, err := e.builder.EstimateGas(ctx, e.bundlerClient, unsigned)
		if err != nil {
			e.logger.Info("gas estimation failed, using static limits", "error", err.Error())
		} else {
			unsigned = estimated
		}
	}

	if !e.sponsorshipEnabled {
		return e.builder.Sign(unsigned)
	}

	presigned, err := e.builder.Presign(unsigned, preset.NewSponsorshipRequest(e.paymaster, sponsorshipValidity))
	if err != nil {
		e.metrics.IncSponsorship("failed")
		return nil, fmt.Errorf("%w: %v", ErrSponsorshipFailed, err)
	}

	sponsored, err := e.builder.Sponsor(ctx, presigned, e.paymasterKey)
	if err != nil {
		e.metrics.IncSponsorship("failed")
		return nil, fmt.Errorf("%w: %v", ErrSponsorshipFailed, err)
	}
	e.metrics.IncSponsorship("sponsored")

	signed, err := e.builder.SignSponsored(sponsored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSponsorshipFailed, err)
	}
	return signed, nil
}

// ListTransactions returns the user's history in creation order.
func (e *Engine) ListTransactions(userID string) ([]*model.TransactionRecord, error) {
	items, err := e.db.GetByPrefix(TransactionsByUserPrefix(userID))
	if err != nil {
		return nil, err
	}

	records := lo.FilterMap(items, func(item *storage.KeyValueItem, _ int) (*model.TransactionRecord, bool) {
		record := &model.TransactionRecord{}
		if err := record.FromStorageData(item.Value); err != nil {
			e.logger.Error("skipping corrupted transaction record", "key", string(item.Key))
			return nil, false
		}
		return record, true
	})

	return records, nil
}

// GetTransaction loads one record by id.
func (e *Engine) GetTransaction(userID, txID string) (*model.TransactionRecord, error) {
	body, err := e.db.GetKey(TransactionStorageKey(userID, txID))
	if err != nil {
		return nil, err
	}

	record := &model.TransactionRecord{}
	if err := record.FromStorageData(body); err != nil {
		return nil, err
	}
	return record, nil
}

// ConfirmTransaction polls the bundler for the operation receipt and settles
// the record to success or failed. It gives up after confirmationTimeout and
// leaves the record pending. A non-nil wallet means the operation carried the
// wallet's initCode; the deployment flag flips only on a successful receipt.
func (e *Engine) ConfirmTransaction(ctx context.Context, record *model.TransactionRecord, wallet *model.SmartWallet) {
	if e.bundlerClient == nil || record.Metadata.UserOpHash == "" {
		return
	}

	deadline := time.Now().Add(e.confirmationTimeout)
	for time.Now().Before(deadline) {
		receipt, err := e.bundlerClient.GetUserOperationReceipt(ctx, record.Metadata.UserOpHash)
		if err == nil && receipt != nil {
			next := model.TxStatusSuccess
			if success, ok := receipt["success"].(bool); ok && !success {
				next = model.TxStatusFailed
				record.Metadata.FailureCause = "operation reverted on chain"
			}
			if txHash, ok := receipt["transactionHash"].(string); ok && txHash != "" {
				record.Metadata.TxHash = txHash
				record.Metadata.ExplorerLink = e.explorerLink(txHash)
			}

			if next == model.TxStatusSuccess && wallet != nil {
				if err := e.markWalletDeployed(wallet); err != nil {
					e.logger.Error("cannot persist wallet deployment", "wallet", wallet.Address.Hex(), "error", err.Error())
				}
			}

			if err := record.MarkStatus(next); err == nil {
				if err := e.saveRecord(record); err != nil {
					e.logger.Error("cannot persist confirmed transaction", "id", record.ID, "error", err.Error())
				}
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.confirmationPoll):
		}
	}

	e.logger.Info("confirmation timed out, leaving transaction pending", "id", record.ID)
}

// Close flushes error reporting; the storage handle is owned by the caller.
func (e *Engine) Close() {
	sentryFlushSafely(2 * time.Second)
}

func (e *Engine) saveRecord(record *model.TransactionRecord) error {
	body, err := record.ToJSON()
	if err != nil {
		return err
	}
	if err := e.db.Set(TransactionStorageKey(record.UserID, record.ID), body); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

func (e *Engine) failRecord(record *model.TransactionRecord, cause string) *model.TransactionRecord {
	record.Metadata.FailureCause = cause
	if err := record.MarkStatus(model.TxStatusFailed); err != nil {
		e.logger.Error("cannot mark transaction failed", "id", record.ID, "error", err.Error())
		return record
	}
	if err := e.saveRecord(record); err != nil {
		e.logger.Error("cannot persist failed transaction", "id", record.ID, "error", err.Error())
	}
	return record
}

func (e *Engine) lockWallet(wallet common.Address) func() {
	e.lock.Lock()
	mu, ok := e.walletLocks[wallet]
	if !ok {
		mu = &sync.Mutex{}
		e.walletLocks[wallet] = mu
	}
	e.lock.Unlock()

	mu.Lock()
	return mu.Unlock
}
