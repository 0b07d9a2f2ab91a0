package views

import "sort"

// OrderBook is the open orders grouped by side. Both sides are ordered by
// price descending; orders at the same price keep creation order.
type OrderBook struct {
	Buys  []DecoratedOrder `json:"buys"`
	Sells []DecoratedOrder `json:"sells"`
}

func buildOrderBook(open []DecoratedOrder) OrderBook {
	var book OrderBook
	for _, o := range open {
		if o.Side == SideBuy {
			book.Buys = append(book.Buys, o)
		} else {
			book.Sells = append(book.Sells, o)
		}
	}
	sortByPriceDesc(book.Buys)
	sortByPriceDesc(book.Sells)
	return book
}

func sortByPriceDesc(orders []DecoratedOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Price.GreaterThan(orders[j].Price)
	})
}

func reverseOrders(s []DecoratedOrder) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
