package asset

import "sort"

// ID identifies an asset held on the exchange. The zero-address sentinel
// denotes the native settlement asset; every other value is the contract
// address of a fungible token.
type ID string

// Native is the reserved sentinel for the ledger's base settlement asset.
const Native ID = "0x0000000000000000000000000000000000000000"

// IsNative reports whether the ID is the native-asset sentinel.
func (id ID) IsNative() bool {
	return id == Native
}

// Info describes a registered asset.
type Info struct {
	ID       ID
	Symbol   string
	Decimals uint8
}

// Registry maps asset IDs to display metadata. The engine itself only
// distinguishes native vs token; the registry exists for the query surface.
type Registry struct {
	assets map[ID]Info
}

func NewRegistry() *Registry {
	r := &Registry{assets: make(map[ID]Info)}
	r.Register(Native, "ETH", 18)
	return r
}

// Register adds or replaces an asset entry.
func (r *Registry) Register(id ID, symbol string, decimals uint8) {
	r.assets[id] = Info{ID: id, Symbol: symbol, Decimals: decimals}
}

// Lookup returns the registered info for an asset.
func (r *Registry) Lookup(id ID) (Info, bool) {
	info, ok := r.assets[id]
	return info, ok
}

// All returns every registered asset, sorted by ID.
func (r *Registry) All() []Info {
	out := make([]Info, 0, len(r.assets))
	for _, info := range r.assets {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Symbol returns the registered symbol, or the raw ID for unknown assets.
func (r *Registry) Symbol(id ID) string {
	if info, ok := r.assets[id]; ok {
		return info.Symbol
	}
	return string(id)
}
