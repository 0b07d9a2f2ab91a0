package views

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"DexLedger/internal/asset"
	"DexLedger/internal/event"
)

// Side labels an order relative to the native asset: an order is a buy when
// it gives the native asset away (tokenGive is the native sentinel), a sell
// otherwise.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Price movement classes for trade rows and the chart indicator.
const (
	PriceUp   = "up"
	PriceDown = "down"
)

// displayTimeLayout renders timestamps as "15:33:07 8/31" (UTC).
const displayTimeLayout = "15:04:05 1/2"

// DecoratedOrder is an order enriched with display fields.
type DecoratedOrder struct {
	ID         uint64   `json:"id"`
	User       string   `json:"user"`
	TokenGet   asset.ID `json:"token_get"`
	AmountGet  uint64   `json:"amount_get"`
	TokenGive  asset.ID `json:"token_give"`
	AmountGive uint64   `json:"amount_give"`
	Timestamp  uint64   `json:"timestamp"`

	// NativeAmount and TokenAmount are AmountGet/AmountGive reoriented so
	// the native side is always NativeAmount, regardless of order side.
	NativeAmount uint64 `json:"native_amount"`
	TokenAmount  uint64 `json:"token_amount"`

	Side  Side            `json:"side"`
	Price decimal.Decimal `json:"price"`

	// FillClass is the side a counter-party takes when filling this order.
	FillClass Side `json:"fill_class"`

	FormattedTime string `json:"formatted_time"`
}

// DecoratedTrade is a trade enriched with display fields. PriceClass compares
// against the chronologically previous trade; the first trade is always up.
type DecoratedTrade struct {
	OrderID    uint64   `json:"order_id"`
	Maker      string   `json:"maker"`
	Filler     string   `json:"filler"`
	TokenGet   asset.ID `json:"token_get"`
	AmountGet  uint64   `json:"amount_get"`
	TokenGive  asset.ID `json:"token_give"`
	AmountGive uint64   `json:"amount_give"`
	Timestamp  uint64   `json:"timestamp"`

	NativeAmount uint64          `json:"native_amount"`
	TokenAmount  uint64          `json:"token_amount"`
	Price        decimal.Decimal `json:"price"`
	PriceClass   string          `json:"price_class"`

	FormattedTime string `json:"formatted_time"`
}

// MyTrade is a trade viewed from one account's perspective. Side reflects
// what THIS account did: when the account is the filler, the label flips
// relative to the maker's order side.
type MyTrade struct {
	DecoratedTrade
	Side Side   `json:"side"`
	Sign string `json:"sign"` // "+" for buys, "-" for sells
}

// orderSide classifies by the asset given away.
func orderSide(tokenGive asset.ID) Side {
	if tokenGive.IsNative() {
		return SideBuy
	}
	return SideSell
}

func opposite(s Side) Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// orientAmounts splits (amountGet, amountGive) into native and token sides.
func orientAmounts(tokenGive asset.ID, amountGet, amountGive uint64) (native, token uint64) {
	if tokenGive.IsNative() {
		return amountGive, amountGet
	}
	return amountGet, amountGive
}

// tokenPrice is nativeAmount/tokenAmount rounded to 5 decimal places,
// half away from zero. Zero when the token side is zero.
func tokenPrice(nativeAmount, tokenAmount uint64) decimal.Decimal {
	if tokenAmount == 0 {
		return decimal.Zero
	}
	n := decimal.NewFromBigInt(new(big.Int).SetUint64(nativeAmount), 0)
	t := decimal.NewFromBigInt(new(big.Int).SetUint64(tokenAmount), 0)
	return n.DivRound(t, 5)
}

func formatTimestamp(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(displayTimeLayout)
}

func decorateOrder(o event.Order) DecoratedOrder {
	side := orderSide(o.TokenGive)
	native, token := orientAmounts(o.TokenGive, o.AmountGet, o.AmountGive)
	return DecoratedOrder{
		ID:            o.ID,
		User:          o.User,
		TokenGet:      o.TokenGet,
		AmountGet:     o.AmountGet,
		TokenGive:     o.TokenGive,
		AmountGive:    o.AmountGive,
		Timestamp:     o.Timestamp,
		NativeAmount:  native,
		TokenAmount:   token,
		Side:          side,
		Price:         tokenPrice(native, token),
		FillClass:     opposite(side),
		FormattedTime: formatTimestamp(o.Timestamp),
	}
}

func decorateTrade(t event.Trade, prev decimal.Decimal, first bool) DecoratedTrade {
	native, token := orientAmounts(t.TokenGive, t.AmountGet, t.AmountGive)
	price := tokenPrice(native, token)

	class := PriceUp
	if !first && price.LessThan(prev) {
		class = PriceDown
	}

	return DecoratedTrade{
		OrderID:       t.OrderID,
		Maker:         t.User,
		Filler:        t.UserFill,
		TokenGet:      t.TokenGet,
		AmountGet:     t.AmountGet,
		TokenGive:     t.TokenGive,
		AmountGive:    t.AmountGive,
		Timestamp:     t.Timestamp,
		NativeAmount:  native,
		TokenAmount:   token,
		Price:         price,
		PriceClass:    class,
		FormattedTime: formatTimestamp(t.Timestamp),
	}
}

// decorateMyTrade relabels a trade for one account. The maker sees the
// order's own side; the filler took the other side of it.
func decorateMyTrade(dt DecoratedTrade, account string, tokenGive asset.ID) MyTrade {
	side := orderSide(tokenGive)
	if account != dt.Maker {
		side = opposite(side)
	}
	sign := "-"
	if side == SideBuy {
		sign = "+"
	}
	return MyTrade{DecoratedTrade: dt, Side: side, Sign: sign}
}
