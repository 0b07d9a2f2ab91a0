package exchange

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"DexLedger/internal/asset"
	"DexLedger/internal/event"
	"DexLedger/internal/eventlog"
	"DexLedger/internal/ledger"
	"DexLedger/internal/observability"
)

// Engine is the authoritative balance/order state machine. Every mutating
// operation (deposit, withdraw, makeOrder, cancelOrder, fillOrder) is applied
// as one indivisible step behind a single writer lock, and exactly one event
// is appended to the log per success. Failures leave state byte-identical
// and append nothing.
type Engine struct {
	mu sync.RWMutex

	ledger  *ledger.Ledger
	orders  *OrderStore
	log     *eventlog.Log
	custody Custody

	feePercent uint64
	feeAccount string

	clock   func() uint64
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewEngine(log *eventlog.Log, custody Custody, feeAccount string, feePercent uint64, metrics *observability.Metrics) *Engine {
	return &Engine{
		ledger:     ledger.New(),
		orders:     NewOrderStore(),
		log:        log,
		custody:    custody,
		feePercent: feePercent,
		feeAccount: feeAccount,
		clock:      func() uint64 { return uint64(time.Now().Unix()) },
		logger:     observability.NewLogger("engine"),
		metrics:    metrics,
	}
}

// SetClock overrides the timestamp source. Timestamps only feed display and
// OHLC bucketing; ordering always comes from the log sequence.
func (e *Engine) SetClock(clock func() uint64) {
	e.clock = clock
}

func (e *Engine) FeePercent() uint64 { return e.feePercent }
func (e *Engine) FeeAccount() string { return e.feeAccount }
func (e *Engine) Log() *eventlog.Log { return e.log }

// BalanceOf returns the current balance, zero for unknown (asset, user) keys.
func (e *Engine) BalanceOf(a asset.ID, user string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Balance(a, user)
}

// Orders returns copies of all orders in creation order.
func (e *Engine) Orders() []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.All()
}

// Order returns a copy of one order.
func (e *Engine) Order(id uint64) (Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders.Get(id)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Deposit dispatches on the asset: the native asset's transferred value is
// the deposit itself, token assets go through the custody pull first.
func (e *Engine) Deposit(a asset.ID, user string, amount uint64) (event.Envelope, error) {
	if a.IsNative() {
		return e.DepositNative(user, amount)
	}
	return e.DepositToken(a, user, amount)
}

// DepositNative credits native-asset funds carried by the submission itself.
func (e *Engine) DepositNative(user string, amount uint64) (event.Envelope, error) {
	return e.deposit(asset.Native, user, amount, false)
}

// DepositToken pulls token funds into custody, then credits them. The native
// sentinel is rejected here: it has no token contract to pull from.
func (e *Engine) DepositToken(a asset.ID, user string, amount uint64) (event.Envelope, error) {
	if a.IsNative() {
		return event.Envelope{}, e.reject("deposit", ErrInvalidAsset)
	}
	return e.deposit(a, user, amount, true)
}

func (e *Engine) deposit(a asset.ID, user string, amount uint64, pull bool) (event.Envelope, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return event.Envelope{}, e.reject("deposit", ErrInvalidAmount)
	}
	// Supply is the hard ceiling: a credit past the uint64 range cannot be
	// represented and would wrap every later conservation check.
	if e.ledger.Supply(a) > math.MaxUint64-amount {
		return event.Envelope{}, e.reject("deposit", fmt.Errorf("%w: asset supply limit exceeded", ErrInvalidAmount))
	}

	// Custody must succeed before any balance changes.
	if pull {
		if err := e.custody.Pull(a, user, amount); err != nil {
			return event.Envelope{}, e.reject("deposit", fmt.Errorf("%w: %v", ErrCustodyFailure, err))
		}
	}

	balance := e.ledger.CreditExternal(a, user, amount)

	env := e.emit(&event.Deposit{
		TransferID: uuid.New(),
		Asset:      a,
		User:       user,
		Amount:     amount,
		Balance:    balance,
		Timestamp:  e.clock(),
	}, []ledger.Key{{Asset: a, User: user}})

	e.applied("deposit", start)
	return env, nil
}

// Withdraw dispatches on the asset, mirroring Deposit.
func (e *Engine) Withdraw(a asset.ID, user string, amount uint64) (event.Envelope, error) {
	if a.IsNative() {
		return e.WithdrawNative(user, amount)
	}
	return e.WithdrawToken(a, user, amount)
}

// WithdrawNative releases native-asset funds back to the user.
func (e *Engine) WithdrawNative(user string, amount uint64) (event.Envelope, error) {
	return e.withdraw(asset.Native, user, amount)
}

// WithdrawToken releases token funds back to the user.
func (e *Engine) WithdrawToken(a asset.ID, user string, amount uint64) (event.Envelope, error) {
	if a.IsNative() {
		return event.Envelope{}, e.reject("withdraw", ErrInvalidAsset)
	}
	return e.withdraw(a, user, amount)
}

func (e *Engine) withdraw(a asset.ID, user string, amount uint64) (event.Envelope, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return event.Envelope{}, e.reject("withdraw", ErrInvalidAmount)
	}
	if e.ledger.Balance(a, user) < amount {
		return event.Envelope{}, e.reject("withdraw", ErrInsufficientBalance)
	}

	// Release before debiting: a failed release must leave the balance
	// untouched (all-or-nothing).
	if err := e.custody.Release(a, user, amount); err != nil {
		return event.Envelope{}, e.reject("withdraw", fmt.Errorf("%w: %v", ErrCustodyFailure, err))
	}

	balance, err := e.ledger.DebitExternal(a, user, amount)
	if err != nil {
		// Unreachable after the balance check above; fail loudly if the
		// ledger and the check ever disagree.
		panic(fmt.Sprintf("FATAL: withdraw debit after balance check: %v", err))
	}

	env := e.emit(&event.Withdraw{
		TransferID: uuid.New(),
		Asset:      a,
		User:       user,
		Amount:     amount,
		Balance:    balance,
		Timestamp:  e.clock(),
	}, []ledger.Key{{Asset: a, User: user}})

	e.applied("withdraw", start)
	return env, nil
}

// MakeOrder creates an order under the next sequential id. No balance check
// happens here; balances are only checked at fill time.
func (e *Engine) MakeOrder(user string, tokenGet asset.ID, amountGet uint64, tokenGive asset.ID, amountGive uint64) (event.Envelope, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if amountGet == 0 || amountGive == 0 {
		return event.Envelope{}, e.reject("make_order", ErrInvalidAmount)
	}

	o := e.orders.Create(user, tokenGet, amountGet, tokenGive, amountGive, e.clock())

	env := e.emit(&event.Order{
		ID:         o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Timestamp:  o.Timestamp,
	}, nil)

	e.applied("make_order", start)
	return env, nil
}

// CancelOrder marks an open order cancelled. Only the maker may cancel, and
// a terminal order never transitions again.
func (e *Engine) CancelOrder(id uint64, caller string) (event.Envelope, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders.Get(id)
	if !ok {
		return event.Envelope{}, e.reject("cancel_order", ErrNotFound)
	}
	if caller != o.User {
		return event.Envelope{}, e.reject("cancel_order", ErrUnauthorized)
	}
	if o.Terminal() {
		return event.Envelope{}, e.reject("cancel_order", ErrAlreadyTerminal)
	}

	o.Cancelled = true

	env := e.emit(&event.Cancel{
		OrderID:    o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Timestamp:  e.clock(),
	}, nil)

	e.applied("cancel_order", start)
	return env, nil
}

// FillOrder executes the trade for an open order. The filler pays
// amountGet plus the fee in tokenGet; the maker pays amountGive in
// tokenGive. Both legs settle as one atomic unit or not at all.
func (e *Engine) FillOrder(id uint64, filler string) (event.Envelope, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders.Get(id)
	if !ok {
		return event.Envelope{}, e.reject("fill_order", ErrNotFound)
	}
	if o.Terminal() {
		return event.Envelope{}, e.reject("fill_order", ErrAlreadyTerminal)
	}

	// Fee is charged to the filler on top of amountGet, denominated in the
	// asset the maker receives. Integer truncation, never rounded up.
	feeAmount, ok := feeOn(o.AmountGet, e.feePercent)
	if !ok {
		return event.Envelope{}, e.reject("fill_order", ErrInsufficientBalance)
	}

	// amountGet plus the fee past the uint64 range is unsatisfiable: no
	// balance can ever cover it.
	needed, carry := bits.Add64(o.AmountGet, feeAmount, 0)
	if carry != 0 {
		return event.Envelope{}, e.reject("fill_order", ErrInsufficientBalance)
	}
	if e.ledger.Balance(o.TokenGet, filler) < needed {
		return event.Envelope{}, e.reject("fill_order", ErrInsufficientBalance)
	}

	legs := []ledger.Leg{
		{Asset: o.TokenGet, From: filler, To: o.User, Amount: o.AmountGet},
		{Asset: o.TokenGive, From: o.User, To: filler, Amount: o.AmountGive},
	}
	if feeAmount > 0 {
		legs = append(legs, ledger.Leg{Asset: o.TokenGet, From: filler, To: e.feeAccount, Amount: feeAmount})
	}

	// ApplyLegs re-validates every debit (including the maker's tokenGive
	// leg) before moving anything, so a short maker aborts the whole fill.
	if err := e.ledger.ApplyLegs(legs); err != nil {
		return event.Envelope{}, e.reject("fill_order", fmt.Errorf("%w: %v", ErrInsufficientBalance, err))
	}

	o.Filled = true

	if e.metrics != nil && feeAmount > 0 {
		e.metrics.FeeCollected.WithLabelValues(string(o.TokenGet)).Add(float64(feeAmount))
	}

	env := e.emit(&event.Trade{
		OrderID:    o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		UserFill:   filler,
		Timestamp:  e.clock(),
	}, []ledger.Key{
		{Asset: o.TokenGet, User: filler},
		{Asset: o.TokenGet, User: o.User},
		{Asset: o.TokenGet, User: e.feeAccount},
		{Asset: o.TokenGive, User: o.User},
		{Asset: o.TokenGive, User: filler},
	})

	e.applied("fill_order", start)
	return env, nil
}

// emit appends one event to the log with a digest of the touched balances.
// Must be called with the write lock held.
func (e *Engine) emit(evt event.Event, touched []ledger.Key) event.Envelope {
	env := e.log.Append(evt, e.stateDigest(touched))

	if env.Sequence%1000 == 0 {
		if err := e.ledger.CheckConservation(); err != nil {
			panic(fmt.Sprintf("FATAL: value conservation violated: %v", err))
		}
	}

	if e.metrics != nil {
		e.metrics.LogLength.Set(float64(env.Sequence))
	}

	e.logger.Debug().
		Uint64("sequence", env.Sequence).
		Str("kind", env.Kind.String()).
		Str("key", env.Key).
		Msg("event appended")

	return env
}

// stateDigest builds canonical bytes over the touched balances for the
// state-hash chain: sorted account paths, each followed by the balance as
// 8 bytes little-endian.
func (e *Engine) stateDigest(touched []ledger.Key) []byte {
	seen := make(map[ledger.Key]bool, len(touched))
	keys := make([]ledger.Key, 0, len(touched))
	for _, k := range touched {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Asset != keys[j].Asset {
			return keys[i].Asset < keys[j].Asset
		}
		return keys[i].User < keys[j].User
	})

	digest := make([]byte, 0, len(keys)*64)
	for _, k := range keys {
		path := fmt.Sprintf("%s:%s", k.Asset, k.User)
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendUint64LE(digest, e.ledger.Balance(k.Asset, k.User))
	}
	return digest
}

// feeOn computes amount*percent/100 in 128-bit space. ok is false when the
// truncated fee itself does not fit in 64 bits.
func feeOn(amount, percent uint64) (fee uint64, ok bool) {
	hi, lo := bits.Mul64(amount, percent)
	if hi >= 100 {
		return 0, false
	}
	fee, _ = bits.Div64(hi, lo, 100)
	return fee, true
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func (e *Engine) reject(op string, err error) error {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason(err)).Inc()
	}
	e.logger.Debug().Str("op", op).Err(err).Msg("operation rejected")
	return err
}

func (e *Engine) applied(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
