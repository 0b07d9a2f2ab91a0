package event

import (
	"fmt"

	"DexLedger/internal/asset"
)

// Order records the creation of an order. Order ids are sequential integers
// starting at 1, assigned by the order store; one Order event exists per id.
type Order struct {
	ID         uint64   `json:"id"`
	User       string   `json:"user"`
	TokenGet   asset.ID `json:"token_get"`
	AmountGet  uint64   `json:"amount_get"`
	TokenGive  asset.ID `json:"token_give"`
	AmountGive uint64   `json:"amount_give"`
	Timestamp  uint64   `json:"timestamp"`
}

func (o *Order) Key() string {
	return fmt.Sprintf("order:%d", o.ID)
}

func (o *Order) EventKind() Kind {
	return KindOrder
}

func (o *Order) OccurredAt() uint64 {
	return o.Timestamp
}

// Cancel records an order's owner cancelling it. It carries the original
// order's fields and a fresh timestamp. At most one of Cancel/Trade ever
// exists for a given order id.
type Cancel struct {
	OrderID    uint64   `json:"order_id"`
	User       string   `json:"user"`
	TokenGet   asset.ID `json:"token_get"`
	AmountGet  uint64   `json:"amount_get"`
	TokenGive  asset.ID `json:"token_give"`
	AmountGive uint64   `json:"amount_give"`
	Timestamp  uint64   `json:"timestamp"`
}

func (c *Cancel) Key() string {
	return fmt.Sprintf("cancel:%d", c.OrderID)
}

func (c *Cancel) EventKind() Kind {
	return KindCancel
}

func (c *Cancel) OccurredAt() uint64 {
	return c.Timestamp
}
