package model

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
)

type TxStatus string

const (
	TxStatusInitiated TxStatus = "initiated"
	TxStatusPending   TxStatus = "pending"
	TxStatusSuccess   TxStatus = "success"
	TxStatusFailed    TxStatus = "failed"
)

type TxType string

const (
	TxTypeDebit  TxType = "debit"
	TxTypeCredit TxType = "credit"
)

// TransactionMetadata carries the chain-level breadcrumbs of a submission.
type TransactionMetadata struct {
	ChainID      int64  `json:"chain_id,omitempty"`
	UserOpHash   string `json:"user_op_hash,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	GasCost      string `json:"gas_cost,omitempty"`
	ExplorerLink string `json:"explorer_link,omitempty"`
	FailureCause string `json:"failure_cause,omitempty"`
}

// TransactionRecord is the persisted history entry for a transfer. It is
// written with status initiated before the operation leaves the process and
// updated as the chain responds.
type TransactionRecord struct {
	ID       string              `json:"id"`
	UserID   string              `json:"user_id"`
	Sender   string              `json:"sender"`
	Receiver string              `json:"receiver"`
	Amount   string              `json:"amount"`
	Currency string              `json:"currency"`
	Type     TxType              `json:"type"`
	Status   TxStatus            `json:"status"`
	Metadata TransactionMetadata `json:"metadata"`
}

// GenerateTransactionID returns a lexicographically sortable id so storage
// iteration yields records in creation order.
func GenerateTransactionID() string {
	return ulid.Make().String()
}

// MarkStatus validates and applies a lifecycle transition. initiated →
// pending → success|failed; failed is also reachable straight from
// initiated when submission never happened.
func (r *TransactionRecord) MarkStatus(next TxStatus) error {
	valid := map[TxStatus][]TxStatus{
		TxStatusInitiated: {TxStatusPending, TxStatusFailed},
		TxStatusPending:   {TxStatusSuccess, TxStatusFailed},
	}

	for _, allowed := range valid[r.Status] {
		if allowed == next {
			r.Status = next
			return nil
		}
	}

	return fmt.Errorf("invalid transaction status transition %s -> %s", r.Status, next)
}

func (r *TransactionRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func (r *TransactionRecord) FromStorageData(body []byte) error {
	return json.Unmarshal(body, r)
}
