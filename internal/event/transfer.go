package event

import (
	"fmt"

	"github.com/google/uuid"

	"DexLedger/internal/asset"
)

// Deposit records a credit of funds onto the exchange.
// Idempotency key: transfer_id (UUID assigned at submission).
type Deposit struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Asset      asset.ID  `json:"asset"`
	User       string    `json:"user"`
	Amount     uint64    `json:"amount"`

	// Balance is the user's balance in Asset AFTER the credit.
	Balance uint64 `json:"balance"`

	Timestamp uint64 `json:"timestamp"`
}

func (d *Deposit) Key() string {
	return fmt.Sprintf("deposit:%s", d.TransferID)
}

func (d *Deposit) EventKind() Kind {
	return KindDeposit
}

func (d *Deposit) OccurredAt() uint64 {
	return d.Timestamp
}

// Withdraw records a debit of funds released back to the user.
// Idempotency key: transfer_id.
type Withdraw struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Asset      asset.ID  `json:"asset"`
	User       string    `json:"user"`
	Amount     uint64    `json:"amount"`

	// Balance is the user's balance in Asset AFTER the debit.
	Balance uint64 `json:"balance"`

	Timestamp uint64 `json:"timestamp"`
}

func (w *Withdraw) Key() string {
	return fmt.Sprintf("withdraw:%s", w.TransferID)
}

func (w *Withdraw) EventKind() Kind {
	return KindWithdraw
}

func (w *Withdraw) OccurredAt() uint64 {
	return w.Timestamp
}
