package views

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"DexLedger/internal/asset"
	"DexLedger/internal/event"
)

func wrap(seq uint64, evt event.Event) event.Envelope {
	return event.Envelope{
		Sequence:  seq,
		Kind:      evt.EventKind(),
		Key:       evt.Key(),
		Timestamp: evt.OccurredAt(),
		Event:     evt,
	}
}

func buyOrder(id uint64, user string, nativeGive, tokenGet uint64) *event.Order {
	return &event.Order{
		ID: id, User: user,
		TokenGet: token, AmountGet: tokenGet,
		TokenGive: asset.Native, AmountGive: nativeGive,
		Timestamp: 1_700_000_000 + id,
	}
}

func TestOpenOrderReconciliation(t *testing.T) {
	p := NewProjector(nil)

	o1 := buyOrder(1, alice, 10, 1)
	o2 := buyOrder(2, alice, 20, 1)
	o3 := buyOrder(3, bob, 30, 1)

	p.Apply(wrap(1, o1))
	p.Apply(wrap(2, o2))
	p.Apply(wrap(3, o3))
	p.Apply(wrap(4, &event.Cancel{
		OrderID: 1, User: alice,
		TokenGet: o1.TokenGet, AmountGet: o1.AmountGet,
		TokenGive: o1.TokenGive, AmountGive: o1.AmountGive,
		Timestamp: 1_700_000_100,
	}))
	p.Apply(wrap(5, &event.Trade{
		OrderID: 2, User: alice, UserFill: bob,
		TokenGet: o2.TokenGet, AmountGet: o2.AmountGet,
		TokenGive: o2.TokenGive, AmountGive: o2.AmountGive,
		Timestamp: 1_700_000_200,
	}))

	open := p.OpenOrders()
	if len(open) != 1 || open[0].ID != 3 {
		t.Fatalf("open orders = %+v, want only id 3", open)
	}
	if got := p.LastApplied(); got != 5 {
		t.Fatalf("last applied = %d, want 5", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	p := NewProjector(nil)

	env := wrap(1, buyOrder(1, alice, 10, 1))
	p.Apply(env)
	p.Apply(env) // redelivery

	if got := len(p.OpenOrders()); got != 1 {
		t.Fatalf("open orders after duplicate = %d, want 1", got)
	}

	tr := wrap(2, &event.Trade{
		OrderID: 1, User: alice, UserFill: bob,
		TokenGet: token, AmountGet: 1,
		TokenGive: asset.Native, AmountGive: 10,
		Timestamp: 1_700_000_100,
	})
	p.Apply(tr)
	p.Apply(tr)

	if got := len(p.TradeHistory()); got != 1 {
		t.Fatalf("trades after duplicate = %d, want 1", got)
	}
}

func TestIncrementalEqualsRebuild(t *testing.T) {
	stream := []event.Envelope{
		wrap(1, &event.Deposit{TransferID: uuid.New(), Asset: asset.Native, User: alice, Amount: 100, Balance: 100, Timestamp: 1_700_000_000}),
		wrap(2, buyOrder(1, alice, 10, 1)),
		wrap(3, buyOrder(2, alice, 20, 1)),
		wrap(4, &event.Trade{
			OrderID: 1, User: alice, UserFill: bob,
			TokenGet: token, AmountGet: 1,
			TokenGive: asset.Native, AmountGive: 10,
			Timestamp: 1_700_000_300,
		}),
		wrap(5, &event.Cancel{OrderID: 2, User: alice, TokenGet: token, AmountGet: 1, TokenGive: asset.Native, AmountGive: 20, Timestamp: 1_700_000_400}),
	}

	incremental := NewProjector(nil)
	for _, env := range stream {
		if err := incremental.Apply(env); err != nil {
			t.Fatalf("apply seq %d: %v", env.Sequence, err)
		}
	}

	rebuilt := NewProjector(nil)
	if err := rebuilt.Rebuild(stream); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if !reflect.DeepEqual(incremental.OpenOrders(), rebuilt.OpenOrders()) {
		t.Fatal("open orders diverge between incremental and rebuild")
	}
	if !reflect.DeepEqual(incremental.TradeHistory(), rebuilt.TradeHistory()) {
		t.Fatal("trade history diverges between incremental and rebuild")
	}
	if incremental.LastApplied() != rebuilt.LastApplied() {
		t.Fatal("last applied diverges")
	}
}

func TestTransferBalances(t *testing.T) {
	p := NewProjector(nil)

	p.Apply(wrap(1, &event.Deposit{TransferID: uuid.New(), Asset: asset.Native, User: alice, Amount: 100, Balance: 100, Timestamp: 1}))
	p.Apply(wrap(2, &event.Deposit{TransferID: uuid.New(), Asset: token, User: alice, Amount: 50, Balance: 50, Timestamp: 2}))
	p.Apply(wrap(3, &event.Withdraw{TransferID: uuid.New(), Asset: asset.Native, User: alice, Amount: 30, Balance: 70, Timestamp: 3}))

	got := p.TransferBalances(alice)
	if got[asset.Native] != 70 || got[token] != 50 {
		t.Fatalf("balances = %v", got)
	}
	if len(p.TransferBalances(bob)) != 0 {
		t.Fatal("unexpected balances for other account")
	}
}

func TestMyOpenOrdersNewestFirst(t *testing.T) {
	p := NewProjector(nil)
	p.Apply(wrap(1, buyOrder(1, alice, 10, 1)))
	p.Apply(wrap(2, buyOrder(2, bob, 20, 1)))
	p.Apply(wrap(3, buyOrder(3, alice, 30, 1)))

	mine := p.MyOpenOrders(alice)
	if len(mine) != 2 || mine[0].ID != 3 || mine[1].ID != 1 {
		t.Fatalf("my open orders = %+v, want ids [3 1]", mine)
	}
}

func TestTradeHistoryNewestFirst(t *testing.T) {
	p := NewProjector(nil)
	for i := uint64(1); i <= 3; i++ {
		p.Apply(wrap(i, &event.Trade{
			OrderID: i, User: alice, UserFill: bob,
			TokenGet: token, AmountGet: 1,
			TokenGive: asset.Native, AmountGive: 10 + i,
			Timestamp: 1_700_000_000 + i,
		}))
	}

	history := p.TradeHistory()
	if len(history) != 3 {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].OrderID != 3 || history[2].OrderID != 1 {
		t.Fatalf("history order = [%d %d %d], want [3 2 1]",
			history[0].OrderID, history[1].OrderID, history[2].OrderID)
	}
}

func TestOrderBookSortedByPriceDesc(t *testing.T) {
	p := NewProjector(nil)
	// Buy prices: 10, 30, 20. Sells: 5, 15.
	p.Apply(wrap(1, buyOrder(1, alice, 10, 1)))
	p.Apply(wrap(2, buyOrder(2, alice, 30, 1)))
	p.Apply(wrap(3, buyOrder(3, alice, 20, 1)))
	p.Apply(wrap(4, &event.Order{
		ID: 4, User: bob,
		TokenGet: asset.Native, AmountGet: 5,
		TokenGive: token, AmountGive: 1,
		Timestamp: 1_700_000_004,
	}))
	p.Apply(wrap(5, &event.Order{
		ID: 5, User: bob,
		TokenGet: asset.Native, AmountGet: 15,
		TokenGive: token, AmountGive: 1,
		Timestamp: 1_700_000_005,
	}))

	book := p.OrderBook()

	buyIDs := [3]uint64{book.Buys[0].ID, book.Buys[1].ID, book.Buys[2].ID}
	if buyIDs != [3]uint64{2, 3, 1} {
		t.Fatalf("buy order = %v, want [2 3 1]", buyIDs)
	}
	if book.Sells[0].ID != 5 || book.Sells[1].ID != 4 {
		t.Fatalf("sell order = [%d %d], want [5 4]", book.Sells[0].ID, book.Sells[1].ID)
	}
}

func TestOrderBookStableForEqualPrices(t *testing.T) {
	p := NewProjector(nil)
	p.Apply(wrap(1, buyOrder(1, alice, 10, 1)))
	p.Apply(wrap(2, buyOrder(2, bob, 10, 1)))

	book := p.OrderBook()
	if book.Buys[0].ID != 1 || book.Buys[1].ID != 2 {
		t.Fatalf("equal-price orders reordered: [%d %d]", book.Buys[0].ID, book.Buys[1].ID)
	}
}

func TestDedupTrackerEvicts(t *testing.T) {
	d := newDedupTracker(2)

	if d.Seen("a") {
		t.Fatal("fresh key reported seen")
	}
	if !d.Seen("a") {
		t.Fatal("repeated key not reported")
	}
	d.Seen("b")
	d.Seen("c") // evicts "a"

	if d.Len() != 2 {
		t.Fatalf("len = %d, want 2", d.Len())
	}
	if d.Seen("a") {
		t.Fatal("evicted key still reported seen")
	}
}
