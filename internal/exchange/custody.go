package exchange

import "DexLedger/internal/asset"

// Custody models the external asset transfer step around the ledger: pulling
// token funds into exchange custody on deposit (the allowance/transferFrom
// analogue) and releasing funds back to the user on withdraw. The native
// asset never goes through Pull: its transferred value is the deposit.
//
// A failed Pull or Release aborts the whole operation with no balance change.
type Custody interface {
	// Pull moves amount of a token asset from user into exchange custody.
	Pull(a asset.ID, user string, amount uint64) error

	// Release moves amount of an asset from exchange custody back to user.
	Release(a asset.ID, user string, amount uint64) error
}

// NopCustody assumes every external transfer succeeds. Used when custody is
// enforced upstream (e.g. the deposit transaction itself carried the funds).
type NopCustody struct{}

func (NopCustody) Pull(asset.ID, string, uint64) error    { return nil }
func (NopCustody) Release(asset.ID, string, uint64) error { return nil }
