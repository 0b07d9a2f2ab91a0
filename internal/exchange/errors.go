package exchange

import "errors"

// Error taxonomy for rejected operations. All are terminal for the exact
// same input; every failure leaves ledger state untouched and emits no event.
var (
	// ErrInsufficientBalance rejects a withdraw or fill exceeding a balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound rejects a cancel or fill for an order id never created.
	ErrNotFound = errors.New("order not found")

	// ErrUnauthorized rejects a cancel by anyone but the order's maker.
	ErrUnauthorized = errors.New("caller is not the order owner")

	// ErrAlreadyTerminal rejects a second fill or cancel on the same order.
	ErrAlreadyTerminal = errors.New("order already filled or cancelled")

	// ErrInvalidAsset rejects the native sentinel on the token custody path
	// and vice versa.
	ErrInvalidAsset = errors.New("invalid asset for operation")

	// ErrCustodyFailure rejects an operation whose external asset transfer
	// or release failed.
	ErrCustodyFailure = errors.New("asset custody transfer failed")

	// ErrInvalidAmount rejects zero amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// reason maps an error to the label used in rejection metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, ErrInvalidAsset):
		return "invalid_asset"
	case errors.Is(err, ErrCustodyFailure):
		return "custody_failure"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "other"
	}
}
