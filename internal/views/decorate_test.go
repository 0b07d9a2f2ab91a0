package views

import (
	"testing"

	"github.com/shopspring/decimal"

	"DexLedger/internal/asset"
	"DexLedger/internal/event"
)

const (
	alice = "0xa11ce00000000000000000000000000000000001"
	bob   = "0xb0b0000000000000000000000000000000000002"

	token = asset.ID("0x7000000000000000000000000000000000000001")
)

func TestOrderSideByTokenGive(t *testing.T) {
	buy := decorateOrder(event.Order{
		ID: 1, User: alice,
		TokenGet: token, AmountGet: 3,
		TokenGive: asset.Native, AmountGive: 1,
		Timestamp: 1_700_000_000,
	})
	if buy.Side != SideBuy {
		t.Fatalf("side = %s, want buy", buy.Side)
	}
	if buy.FillClass != SideSell {
		t.Fatalf("fill class = %s, want sell", buy.FillClass)
	}
	if buy.NativeAmount != 1 || buy.TokenAmount != 3 {
		t.Fatalf("amounts = %d/%d, want 1/3", buy.NativeAmount, buy.TokenAmount)
	}

	sell := decorateOrder(event.Order{
		ID: 2, User: alice,
		TokenGet: asset.Native, AmountGet: 1,
		TokenGive: token, AmountGive: 3,
		Timestamp: 1_700_000_000,
	})
	if sell.Side != SideSell {
		t.Fatalf("side = %s, want sell", sell.Side)
	}
	if sell.NativeAmount != 1 || sell.TokenAmount != 3 {
		t.Fatalf("amounts = %d/%d, want 1/3", sell.NativeAmount, sell.TokenAmount)
	}
}

func TestTokenPriceRoundsToFivePlaces(t *testing.T) {
	// 1/3 = 0.33333...
	if got := tokenPrice(1, 3); !got.Equal(decimal.RequireFromString("0.33333")) {
		t.Fatalf("price = %s, want 0.33333", got)
	}
	// 2/3 = 0.66666... rounds up.
	if got := tokenPrice(2, 3); !got.Equal(decimal.RequireFromString("0.66667")) {
		t.Fatalf("price = %s, want 0.66667", got)
	}
	if got := tokenPrice(5, 0); !got.IsZero() {
		t.Fatalf("price with zero token side = %s, want 0", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	// 2023-11-14 22:13:20 UTC
	if got := formatTimestamp(1_700_000_000); got != "22:13:20 11/14" {
		t.Fatalf("formatted time = %q", got)
	}
}

func TestDecorateTradesPriceClasses(t *testing.T) {
	trades := []event.Trade{
		tradeAtPrice(1, 10),
		tradeAtPrice(2, 12),
		tradeAtPrice(3, 11),
		tradeAtPrice(4, 11),
	}

	decorated := decorateTrades(trades)
	want := []string{PriceUp, PriceUp, PriceDown, PriceUp}
	for i, dt := range decorated {
		if dt.PriceClass != want[i] {
			t.Errorf("trade %d class = %s, want %s", i+1, dt.PriceClass, want[i])
		}
	}
}

func TestMyTradeSideFlipsForFiller(t *testing.T) {
	// Maker buy order (gives native); the filler took the sell side.
	tr := event.Trade{
		OrderID: 1, User: alice, UserFill: bob,
		TokenGet: token, AmountGet: 2,
		TokenGive: asset.Native, AmountGive: 1,
		Timestamp: 1_700_000_000,
	}
	dt := decorateTrade(tr, decimal.Zero, true)

	makerView := decorateMyTrade(dt, alice, tr.TokenGive)
	if makerView.Side != SideBuy || makerView.Sign != "+" {
		t.Fatalf("maker view = %s/%s, want buy/+", makerView.Side, makerView.Sign)
	}

	fillerView := decorateMyTrade(dt, bob, tr.TokenGive)
	if fillerView.Side != SideSell || fillerView.Sign != "-" {
		t.Fatalf("filler view = %s/%s, want sell/-", fillerView.Side, fillerView.Sign)
	}
}

// tradeAtPrice builds a trade whose token price equals the given native
// amount per token.
func tradeAtPrice(id uint64, price uint64) event.Trade {
	return event.Trade{
		OrderID: id, User: alice, UserFill: bob,
		TokenGet: token, AmountGet: 1,
		TokenGive: asset.Native, AmountGive: price,
		Timestamp: 1_700_000_000 + id,
	}
}
