package ledger

import (
	"fmt"

	"DexLedger/internal/asset"
)

// Key addresses one balance entry.
type Key struct {
	Asset asset.ID
	User  string
}

// Ledger maintains in-memory (asset, user) balances plus the conserved
// supply of each asset held in custody. Entries are created implicitly on
// first credit and read as zero when absent.
//
// Not thread-safe; all mutation goes through the exchange engine's single
// writer.
type Ledger struct {
	balances map[Key]uint64

	// supply tracks the total of each asset deposited minus withdrawn.
	// Internal transfers never change it; the conservation check below
	// verifies the balances always sum back to it.
	supply map[asset.ID]uint64
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[Key]uint64),
		supply:   make(map[asset.ID]uint64),
	}
}

// Balance returns the current balance, zero for unknown keys.
func (l *Ledger) Balance(a asset.ID, user string) uint64 {
	return l.balances[Key{Asset: a, User: user}]
}

// CreditExternal credits funds entering the exchange (a deposit) and grows
// the asset's conserved supply. Returns the resulting balance.
func (l *Ledger) CreditExternal(a asset.ID, user string, amount uint64) uint64 {
	k := Key{Asset: a, User: user}
	l.balances[k] += amount
	l.supply[a] += amount
	return l.balances[k]
}

// DebitExternal debits funds leaving the exchange (a withdrawal) and shrinks
// the asset's conserved supply. Returns the resulting balance.
func (l *Ledger) DebitExternal(a asset.ID, user string, amount uint64) (uint64, error) {
	k := Key{Asset: a, User: user}
	if l.balances[k] < amount {
		return 0, fmt.Errorf("debit %d exceeds balance %d for %s/%s", amount, l.balances[k], a, user)
	}
	l.balances[k] -= amount
	l.supply[a] -= amount
	return l.balances[k], nil
}

// Supply returns the conserved total of an asset held on the exchange.
func (l *Ledger) Supply(a asset.ID) uint64 {
	return l.supply[a]
}

// Snapshot returns a copy of all balances.
func (l *Ledger) Snapshot() map[Key]uint64 {
	snap := make(map[Key]uint64, len(l.balances))
	for k, v := range l.balances {
		snap[k] = v
	}
	return snap
}

// CheckConservation verifies that for every asset the sum of all balances
// equals the tracked supply. Internal transfers (trade legs, fees) only move
// value between users and must never create or destroy it.
func (l *Ledger) CheckConservation() error {
	totals := make(map[asset.ID]uint64)
	for k, v := range l.balances {
		totals[k.Asset] += v
	}
	for a, supply := range l.supply {
		if totals[a] != supply {
			return fmt.Errorf("asset %s: balances sum to %d, supply is %d", a, totals[a], supply)
		}
	}
	for a, total := range totals {
		if l.supply[a] != total {
			return fmt.Errorf("asset %s: balances sum to %d, supply is %d", a, total, l.supply[a])
		}
	}
	return nil
}
