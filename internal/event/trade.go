package event

import (
	"fmt"

	"DexLedger/internal/asset"
)

// Trade records an order being filled. It carries the maker's original order
// fields plus the counter-party and the fill timestamp. Trades are append-only
// and never mutated; at most one Trade exists per order id.
type Trade struct {
	OrderID    uint64   `json:"order_id"`
	User       string   `json:"user"` // maker
	TokenGet   asset.ID `json:"token_get"`
	AmountGet  uint64   `json:"amount_get"`
	TokenGive  asset.ID `json:"token_give"`
	AmountGive uint64   `json:"amount_give"`
	UserFill   string   `json:"user_fill"` // filler
	Timestamp  uint64   `json:"timestamp"`
}

func (t *Trade) Key() string {
	return fmt.Sprintf("trade:%d", t.OrderID)
}

func (t *Trade) EventKind() Kind {
	return KindTrade
}

func (t *Trade) OccurredAt() uint64 {
	return t.Timestamp
}
