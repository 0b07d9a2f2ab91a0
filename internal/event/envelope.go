package event

// Kind discriminates event payloads in the log.
type Kind int32

const (
	KindUnknown Kind = iota
	KindDeposit
	KindWithdraw
	KindOrder
	KindCancel
	KindTrade
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "Deposit"
	case KindWithdraw:
		return "Withdraw"
	case KindOrder:
		return "Order"
	case KindCancel:
		return "Cancel"
	case KindTrade:
		return "Trade"
	default:
		return "Unknown"
	}
}

// KindFromString is the inverse of Kind.String, used by the wire codec.
func KindFromString(s string) Kind {
	switch s {
	case "Deposit":
		return KindDeposit
	case "Withdraw":
		return KindWithdraw
	case "Order":
		return KindOrder
	case "Cancel":
		return KindCancel
	case "Trade":
		return KindTrade
	default:
		return KindUnknown
	}
}

// Event is the interface all payloads in the log implement.
type Event interface {
	// Key returns the stable dedup key for this event. Projections treat a
	// second delivery of the same key as a no-op.
	Key() string

	// EventKind returns the payload discriminator.
	EventKind() Kind

	// OccurredAt returns the event's timestamp in Unix seconds. Timestamps
	// are display/bucketing data only; ordering comes from the envelope
	// sequence.
	OccurredAt() uint64
}

// Envelope wraps every event appended to the log.
type Envelope struct {
	// Sequence is the global emission order assigned by the single writer,
	// starting at 1. It is the only valid ordering of events.
	Sequence uint64 `json:"sequence"`

	// Kind mirrors Event.EventKind for consumers that switch before decoding.
	Kind Kind `json:"kind"`

	// Key mirrors Event.Key.
	Key string `json:"key"`

	// Timestamp mirrors Event.OccurredAt.
	Timestamp uint64 `json:"timestamp"`

	// SHA-256 of ledger state AFTER applying this event.
	StateHash [32]byte `json:"state_hash"`

	// Previous envelope's state hash (chain integrity).
	PrevHash [32]byte `json:"prev_hash"`

	// Event is the typed payload.
	Event Event `json:"-"`
}
