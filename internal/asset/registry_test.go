package asset

import "testing"

func TestNativeSentinel(t *testing.T) {
	if !Native.IsNative() {
		t.Fatal("Native sentinel not recognized")
	}
	if ID("0x7000000000000000000000000000000000000001").IsNative() {
		t.Fatal("token address classified as native")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	info, ok := r.Lookup(Native)
	if !ok {
		t.Fatal("native asset not pre-registered")
	}
	if info.Symbol != "ETH" || info.Decimals != 18 {
		t.Fatalf("unexpected native info: %+v", info)
	}

	token := ID("0x7000000000000000000000000000000000000001")
	r.Register(token, "DEX", 18)

	if got := r.Symbol(token); got != "DEX" {
		t.Fatalf("Symbol = %q, want DEX", got)
	}
	if got := r.Symbol(ID("0xdead")); got != "0xdead" {
		t.Fatalf("unknown asset symbol = %q, want raw id", got)
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(ID("0x9000000000000000000000000000000000000009"), "ZZZ", 6)
	r.Register(ID("0x1000000000000000000000000000000000000001"), "AAA", 8)

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("len(All) = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("All not sorted: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}
