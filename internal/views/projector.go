package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"DexLedger/internal/asset"
	"DexLedger/internal/event"
	"DexLedger/internal/eventlog"
	"DexLedger/internal/observability"
)

// Projector folds the event stream into the derived read models: open
// orders, the order book, trade history, per-account views, transfer
// balances and the price chart.
//
// Apply is idempotent per event key, so feeding it an at-least-once stream
// (NATS redelivery, overlapping replays) converges to the same state as a
// clean single pass. Every view equals what a full rebuild from genesis
// would produce.
type Projector struct {
	mu sync.RWMutex

	orders    []event.Order
	cancelled map[uint64]event.Cancel
	filled    map[uint64]bool
	trades    []event.Trade // ascending application order

	// Latest balance snapshot per (asset, user) observed on transfer
	// events. Trades do not carry balances, so this reflects deposits and
	// withdrawals only; the engine remains the balance authority.
	balances map[balanceKey]uint64

	dedup   *dedupTracker
	lastSeq uint64

	logger  zerolog.Logger
	metrics *observability.Metrics
}

type balanceKey struct {
	Asset asset.ID
	User  string
}

func NewProjector(metrics *observability.Metrics) *Projector {
	p := &Projector{
		logger:  observability.NewLogger("projector"),
		metrics: metrics,
	}
	p.reset()
	return p
}

// reset assumes p.mu is held (or the projector is not yet shared).
func (p *Projector) reset() {
	p.orders = nil
	p.cancelled = make(map[uint64]event.Cancel)
	p.filled = make(map[uint64]bool)
	p.trades = nil
	p.balances = make(map[balanceKey]uint64)
	p.dedup = newDedupTracker(0)
	p.lastSeq = 0
}

// Apply folds one envelope into the views. A redelivered key is a no-op.
func (p *Projector) Apply(env event.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apply(env)
}

func (p *Projector) apply(env event.Envelope) error {
	if env.Event == nil {
		return fmt.Errorf("envelope %d has no payload", env.Sequence)
	}

	if p.dedup.Seen(env.Key) {
		if p.metrics != nil {
			p.metrics.ProjectionDuplicates.WithLabelValues(env.Kind.String()).Inc()
		}
		p.logger.Debug().Str("key", env.Key).Msg("duplicate event ignored")
		return nil
	}

	switch evt := env.Event.(type) {
	case *event.Deposit:
		p.balances[balanceKey{Asset: evt.Asset, User: evt.User}] = evt.Balance
	case *event.Withdraw:
		p.balances[balanceKey{Asset: evt.Asset, User: evt.User}] = evt.Balance
	case *event.Order:
		p.orders = append(p.orders, *evt)
	case *event.Cancel:
		p.cancelled[evt.OrderID] = *evt
	case *event.Trade:
		p.trades = append(p.trades, *evt)
		p.filled[evt.OrderID] = true
	default:
		return fmt.Errorf("envelope %d: unknown payload %T", env.Sequence, env.Event)
	}

	if env.Sequence > p.lastSeq {
		p.lastSeq = env.Sequence
	}
	if p.metrics != nil {
		p.metrics.ProjectionApplied.WithLabelValues(env.Kind.String()).Inc()
		p.metrics.ProjectionSequence.Set(float64(p.lastSeq))
	}
	return nil
}

// Rebuild discards all views and refolds the given envelopes from scratch.
func (p *Projector) Rebuild(envs []event.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()
	if p.metrics != nil {
		p.metrics.ProjectionRebuilds.Inc()
	}
	for _, env := range envs {
		if err := p.apply(env); err != nil {
			return err
		}
	}
	p.logger.Info().Uint64("sequence", p.lastSeq).Msg("views rebuilt")
	return nil
}

// Run consumes the log from just past the last applied sequence until ctx
// is cancelled. Blocking; run in its own goroutine.
func (p *Projector) Run(ctx context.Context, log *eventlog.Log) {
	for env := range log.Subscribe(ctx, p.LastApplied()+1) {
		if err := p.Apply(env); err != nil {
			p.logger.Error().Err(err).Uint64("sequence", env.Sequence).Msg("projection apply failed")
		}
	}
}

// LastApplied returns the highest applied envelope sequence.
func (p *Projector) LastApplied() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeq
}

// openOrdersLocked assumes p.mu is held. Open = all orders minus those with
// a cancel or trade recorded against their id, in creation order.
func (p *Projector) openOrdersLocked() []DecoratedOrder {
	out := make([]DecoratedOrder, 0, len(p.orders))
	for _, o := range p.orders {
		if _, cancelled := p.cancelled[o.ID]; cancelled {
			continue
		}
		if p.filled[o.ID] {
			continue
		}
		out = append(out, decorateOrder(o))
	}
	return out
}

// OpenOrders returns all open orders, decorated, in creation order.
func (p *Projector) OpenOrders() []DecoratedOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.openOrdersLocked()
}

// OrderBook groups the open orders into buy/sell sides.
func (p *Projector) OrderBook() OrderBook {
	p.mu.RLock()
	open := p.openOrdersLocked()
	p.mu.RUnlock()
	return buildOrderBook(open)
}

// MyOpenOrders returns the account's own open orders, newest first.
func (p *Projector) MyOpenOrders(account string) []DecoratedOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []DecoratedOrder
	for _, o := range p.openOrdersLocked() {
		if o.User == account {
			out = append(out, o)
		}
	}
	reverseOrders(out)
	return out
}

// TradeHistory returns all trades, decorated, newest first.
func (p *Projector) TradeHistory() []DecoratedTrade {
	p.mu.RLock()
	asc := decorateTrades(p.trades)
	p.mu.RUnlock()
	reverseTrades(asc)
	return asc
}

// MyTrades returns the trades the account took part in, from its own
// perspective, newest first.
func (p *Projector) MyTrades(account string) []MyTrade {
	p.mu.RLock()
	asc := decorateTrades(p.trades)
	raw := make([]event.Trade, len(p.trades))
	copy(raw, p.trades)
	p.mu.RUnlock()

	var out []MyTrade
	for i, dt := range asc {
		if dt.Maker != account && dt.Filler != account {
			continue
		}
		out = append(out, decorateMyTrade(dt, account, raw[i].TokenGive))
	}
	reverseMyTrades(out)
	return out
}

// PriceChart returns the hourly OHLC series and last-price indicator.
func (p *Projector) PriceChart() PriceChart {
	p.mu.RLock()
	asc := decorateTrades(p.trades)
	p.mu.RUnlock()
	return buildPriceChart(asc)
}

// TransferBalances returns the account's last balance snapshots seen on
// deposit and withdraw events, by asset.
func (p *Projector) TransferBalances(account string) map[asset.ID]uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[asset.ID]uint64)
	for k, v := range p.balances {
		if k.User == account {
			out[k.Asset] = v
		}
	}
	return out
}
