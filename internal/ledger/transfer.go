package ledger

import (
	"fmt"
	"math/bits"

	"DexLedger/internal/asset"
)

// Leg is one internal value movement between two users of a single asset.
type Leg struct {
	Asset  asset.ID
	From   string
	To     string
	Amount uint64
}

// ApplyLegs settles a set of legs as one atomic unit: every debit is
// validated against the net requirement per (asset, payer) before any
// balance moves, so a failing leg leaves the ledger untouched. Legs are
// internal transfers and do not change the conserved supply.
func (l *Ledger) ApplyLegs(legs []Leg) error {
	if len(legs) == 0 {
		return fmt.Errorf("empty leg set")
	}

	// Net out what each (asset, user) must pay across all legs. A payer may
	// appear in several legs of the same asset (e.g. principal plus fee).
	// The accumulation must not wrap: a requirement past the uint64 range
	// exceeds any possible balance.
	required := make(map[Key]uint64)
	for _, leg := range legs {
		if leg.Amount == 0 {
			return fmt.Errorf("zero-amount leg %s -> %s", leg.From, leg.To)
		}
		if leg.From == leg.To {
			return fmt.Errorf("self-transfer leg for %s", leg.From)
		}
		k := Key{Asset: leg.Asset, User: leg.From}
		sum, carry := bits.Add64(required[k], leg.Amount, 0)
		if carry != 0 {
			return fmt.Errorf("required debits for %s/%s exceed the representable range", k.Asset, k.User)
		}
		required[k] = sum
	}

	for k, need := range required {
		if have := l.balances[k]; have < need {
			return fmt.Errorf("insufficient balance for %s/%s: have %d, need %d", k.Asset, k.User, have, need)
		}
	}

	for _, leg := range legs {
		l.balances[Key{Asset: leg.Asset, User: leg.From}] -= leg.Amount
		l.balances[Key{Asset: leg.Asset, User: leg.To}] += leg.Amount
	}

	return nil
}
