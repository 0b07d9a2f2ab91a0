package ingestion

import (
	"testing"

	"github.com/google/uuid"

	"DexLedger/internal/asset"
	"DexLedger/internal/event"
)

const token = asset.ID("0x7000000000000000000000000000000000000001")

func TestEnvelopeRoundTrip(t *testing.T) {
	evt := &event.Trade{
		OrderID: 7,
		User:    "0xa11ce00000000000000000000000000000000001",
		TokenGet: token, AmountGet: 100,
		TokenGive: asset.Native, AmountGive: 50,
		UserFill:  "0xb0b0000000000000000000000000000000000002",
		Timestamp: 1_700_000_000,
	}
	env := event.Envelope{
		Sequence:  42,
		Kind:      evt.EventKind(),
		Key:       evt.Key(),
		Timestamp: evt.OccurredAt(),
		Event:     evt,
	}
	env.StateHash[0] = 0xaa
	env.PrevHash[31] = 0xbb

	data, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Sequence != 42 || got.Kind != event.KindTrade || got.Key != "trade:7" {
		t.Fatalf("envelope header mismatch: %+v", got)
	}
	if got.StateHash != env.StateHash || got.PrevHash != env.PrevHash {
		t.Fatal("hash round trip mismatch")
	}

	tr, ok := got.Event.(*event.Trade)
	if !ok {
		t.Fatalf("payload is %T, want *event.Trade", got.Event)
	}
	if *tr != *evt {
		t.Fatalf("payload mismatch: %+v != %+v", tr, evt)
	}
}

func TestDecodeDepositPayload(t *testing.T) {
	evt := &event.Deposit{
		TransferID: uuid.New(),
		Asset:      token,
		User:       "0xa11ce00000000000000000000000000000000001",
		Amount:     100,
		Balance:    250,
		Timestamp:  1_700_000_000,
	}
	env := event.Envelope{Sequence: 1, Kind: evt.EventKind(), Key: evt.Key(), Timestamp: evt.OccurredAt(), Event: evt}

	data, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	dep := got.Event.(*event.Deposit)
	if dep.TransferID != evt.TransferID || dep.Balance != 250 {
		t.Fatalf("deposit payload mismatch: %+v", dep)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"sequence":1,"kind":"Nonsense","payload":{}}`)); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestDecodeRejectsMalformedHash(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"sequence":1,"kind":"Order","state_hash":"zz","payload":{}}`)); err == nil {
		t.Fatal("malformed hash accepted")
	}
}

func TestSequenceValidator(t *testing.T) {
	sv := NewSequenceValidator()

	for seq := uint64(1); seq <= 3; seq++ {
		dup, err := sv.Validate(seq)
		if err != nil || dup {
			t.Fatalf("seq %d: dup=%v err=%v", seq, dup, err)
		}
	}

	// Redelivery of an old sequence is tolerated.
	dup, err := sv.Validate(2)
	if err != nil || !dup {
		t.Fatalf("redelivery: dup=%v err=%v", dup, err)
	}

	// A gap is an error and does not advance the cursor.
	if _, err := sv.Validate(6); err == nil {
		t.Fatal("gap accepted")
	}
	if sv.Next() != 4 {
		t.Fatalf("cursor moved on gap: next=%d", sv.Next())
	}

	if sv.Duplicates() != 1 || sv.Gaps() != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", sv.Duplicates(), sv.Gaps())
	}
}
