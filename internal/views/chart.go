package views

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one hourly OHLC bucket.
type Candle struct {
	Bucket time.Time       `json:"bucket"` // start of hour, UTC
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
}

// PriceChart is the hourly candle series plus the last-price indicator.
// PriceChange is "up" when the latest trade's price is at or above the
// previous trade's, "down" otherwise.
type PriceChart struct {
	Series      []Candle        `json:"series"`
	LastPrice   decimal.Decimal `json:"last_price"`
	PriceChange string          `json:"price_change"`
}

// buildPriceChart expects trades in ascending application order. Fewer than
// three trades yields an empty chart with no indicator.
func buildPriceChart(trades []DecoratedTrade) PriceChart {
	if len(trades) < 3 {
		return PriceChart{}
	}

	last := trades[len(trades)-1].Price
	secondLast := trades[len(trades)-2].Price
	change := PriceUp
	if last.LessThan(secondLast) {
		change = PriceDown
	}

	byTime := make([]DecoratedTrade, len(trades))
	copy(byTime, trades)
	sort.SliceStable(byTime, func(i, j int) bool {
		return byTime[i].Timestamp < byTime[j].Timestamp
	})

	var series []Candle
	for _, t := range byTime {
		bucket := time.Unix(int64(t.Timestamp), 0).UTC().Truncate(time.Hour)

		if n := len(series); n > 0 && series[n-1].Bucket.Equal(bucket) {
			c := &series[n-1]
			c.Close = t.Price
			if t.Price.GreaterThan(c.High) {
				c.High = t.Price
			}
			if t.Price.LessThan(c.Low) {
				c.Low = t.Price
			}
			continue
		}

		series = append(series, Candle{
			Bucket: bucket,
			Open:   t.Price,
			High:   t.Price,
			Low:    t.Price,
			Close:  t.Price,
		})
	}

	return PriceChart{Series: series, LastPrice: last, PriceChange: change}
}
