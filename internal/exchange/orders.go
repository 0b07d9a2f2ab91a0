package exchange

import "DexLedger/internal/asset"

// Order is an order record. Immutable once created except for the two
// terminal flags; at most one of Filled/Cancelled ever becomes true and
// neither ever reverts.
type Order struct {
	ID         uint64
	User       string
	TokenGet   asset.ID
	AmountGet  uint64
	TokenGive  asset.ID
	AmountGive uint64
	Timestamp  uint64

	Filled    bool
	Cancelled bool
}

// Terminal reports whether the order has been filled or cancelled.
func (o *Order) Terminal() bool {
	return o.Filled || o.Cancelled
}

// OrderStore assigns sequential order ids and holds all order records.
// Ids start at 1, strictly increase and are never reused.
//
// Not thread-safe; owned by the engine's single writer.
type OrderStore struct {
	nextID uint64
	orders map[uint64]*Order
	ids    []uint64 // creation order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		nextID: 1,
		orders: make(map[uint64]*Order),
	}
}

// Create stores a new order under the next sequential id.
func (s *OrderStore) Create(user string, tokenGet asset.ID, amountGet uint64, tokenGive asset.ID, amountGive uint64, timestamp uint64) *Order {
	o := &Order{
		ID:         s.nextID,
		User:       user,
		TokenGet:   tokenGet,
		AmountGet:  amountGet,
		TokenGive:  tokenGive,
		AmountGive: amountGive,
		Timestamp:  timestamp,
	}
	s.orders[o.ID] = o
	s.ids = append(s.ids, o.ID)
	s.nextID++
	return o
}

// Get returns the order for an id.
func (s *OrderStore) Get(id uint64) (*Order, bool) {
	o, ok := s.orders[id]
	return o, ok
}

// Count returns the number of orders ever created.
func (s *OrderStore) Count() uint64 {
	return uint64(len(s.ids))
}

// All returns copies of every order in creation order.
func (s *OrderStore) All() []Order {
	out := make([]Order, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, *s.orders[id])
	}
	return out
}
