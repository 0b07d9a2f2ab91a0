package views

import (
	"github.com/shopspring/decimal"

	"DexLedger/internal/event"
)

// decorateTrades decorates in ascending application order so each trade's
// PriceClass compares against the trade before it. Callers reverse the
// result when serving newest-first.
func decorateTrades(trades []event.Trade) []DecoratedTrade {
	out := make([]DecoratedTrade, 0, len(trades))
	prev := decimal.Zero
	for i, t := range trades {
		dt := decorateTrade(t, prev, i == 0)
		out = append(out, dt)
		prev = dt.Price
	}
	return out
}

func reverseTrades(s []DecoratedTrade) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseMyTrades(s []MyTrade) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
