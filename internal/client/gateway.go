package client

import (
	"sync/atomic"

	"DexLedger/internal/asset"
	"DexLedger/internal/event"
	"DexLedger/internal/exchange"
)

// Gateway fronts the engine's mutating operations with pending-state flags.
// Each flag is true while an operation of that class is in flight and clears
// on completion, success or failure, so UIs can disable the matching control
// instead of double-submitting.
type Gateway struct {
	engine *exchange.Engine

	depositing  atomic.Bool
	withdrawing atomic.Bool
	making      atomic.Bool
	cancelling  atomic.Bool
	filling     atomic.Bool
}

// PendingState is a snapshot of the in-flight operation flags.
type PendingState struct {
	Depositing      bool `json:"depositing"`
	Withdrawing     bool `json:"withdrawing"`
	OrderMaking     bool `json:"order_making"`
	OrderCancelling bool `json:"order_cancelling"`
	OrderFilling    bool `json:"order_filling"`
}

func NewGateway(engine *exchange.Engine) *Gateway {
	return &Gateway{engine: engine}
}

func (g *Gateway) Pending() PendingState {
	return PendingState{
		Depositing:      g.depositing.Load(),
		Withdrawing:     g.withdrawing.Load(),
		OrderMaking:     g.making.Load(),
		OrderCancelling: g.cancelling.Load(),
		OrderFilling:    g.filling.Load(),
	}
}

func (g *Gateway) Deposit(a asset.ID, user string, amount uint64) (event.Envelope, error) {
	g.depositing.Store(true)
	defer g.depositing.Store(false)
	return g.engine.Deposit(a, user, amount)
}

func (g *Gateway) Withdraw(a asset.ID, user string, amount uint64) (event.Envelope, error) {
	g.withdrawing.Store(true)
	defer g.withdrawing.Store(false)
	return g.engine.Withdraw(a, user, amount)
}

func (g *Gateway) MakeOrder(user string, tokenGet asset.ID, amountGet uint64, tokenGive asset.ID, amountGive uint64) (event.Envelope, error) {
	g.making.Store(true)
	defer g.making.Store(false)
	return g.engine.MakeOrder(user, tokenGet, amountGet, tokenGive, amountGive)
}

func (g *Gateway) CancelOrder(id uint64, caller string) (event.Envelope, error) {
	g.cancelling.Store(true)
	defer g.cancelling.Store(false)
	return g.engine.CancelOrder(id, caller)
}

func (g *Gateway) FillOrder(id uint64, filler string) (event.Envelope, error) {
	g.filling.Store(true)
	defer g.filling.Store(false)
	return g.engine.FillOrder(id, filler)
}
