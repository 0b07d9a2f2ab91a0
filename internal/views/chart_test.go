package views

import (
	"testing"
	"time"

	"DexLedger/internal/event"
)

func TestPriceChartNeedsThreeTrades(t *testing.T) {
	chart := buildPriceChart(decorateTrades([]event.Trade{
		tradeAtPrice(1, 10),
		tradeAtPrice(2, 12),
	}))
	if len(chart.Series) != 0 {
		t.Fatalf("series length = %d, want 0", len(chart.Series))
	}
	if chart.PriceChange != "" {
		t.Fatalf("price change = %q, want empty", chart.PriceChange)
	}
}

func TestPriceChartHourlyOHLC(t *testing.T) {
	// Three trades in the same hour at prices 10, 12, 11.
	trades := []event.Trade{
		tradeAtPrice(1, 10),
		tradeAtPrice(2, 12),
		tradeAtPrice(3, 11),
	}

	chart := buildPriceChart(decorateTrades(trades))
	if len(chart.Series) != 1 {
		t.Fatalf("series length = %d, want 1", len(chart.Series))
	}

	c := chart.Series[0]
	if c.Open.String() != "10" || c.High.String() != "12" || c.Low.String() != "10" || c.Close.String() != "11" {
		t.Fatalf("candle O/H/L/C = %s/%s/%s/%s, want 10/12/10/11",
			c.Open, c.High, c.Low, c.Close)
	}
	if !c.Bucket.Equal(c.Bucket.Truncate(time.Hour)) {
		t.Fatalf("bucket %v is not aligned to the hour", c.Bucket)
	}

	if chart.LastPrice.String() != "11" {
		t.Fatalf("last price = %s, want 11", chart.LastPrice)
	}
	if chart.PriceChange != PriceDown {
		t.Fatalf("price change = %s, want down", chart.PriceChange)
	}
}

func TestPriceChartSplitsHours(t *testing.T) {
	mkTrade := func(id uint64, price uint64, ts uint64) event.Trade {
		tr := tradeAtPrice(id, price)
		tr.Timestamp = ts
		return tr
	}

	base := uint64(1_700_000_000) // 22:13:20 UTC, bucket 22:00
	trades := []event.Trade{
		mkTrade(1, 10, base),
		mkTrade(2, 12, base+60),
		mkTrade(3, 11, base+3600), // next hour
		mkTrade(4, 13, base+3660),
	}

	chart := buildPriceChart(decorateTrades(trades))
	if len(chart.Series) != 2 {
		t.Fatalf("series length = %d, want 2", len(chart.Series))
	}

	first, second := chart.Series[0], chart.Series[1]
	if first.Open.String() != "10" || first.Close.String() != "12" {
		t.Fatalf("first candle O/C = %s/%s, want 10/12", first.Open, first.Close)
	}
	if second.Open.String() != "11" || second.Close.String() != "13" {
		t.Fatalf("second candle O/C = %s/%s, want 11/13", second.Open, second.Close)
	}
	if chart.PriceChange != PriceUp {
		t.Fatalf("price change = %s, want up", chart.PriceChange)
	}
}
