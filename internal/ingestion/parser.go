package ingestion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"DexLedger/internal/event"
)

// wireEnvelope is the JSON form of an envelope on the NATS wire. Hashes are
// hex strings, the payload stays raw until the kind is known.
type wireEnvelope struct {
	Sequence  uint64          `json:"sequence"`
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Timestamp uint64          `json:"timestamp"`
	StateHash string          `json:"state_hash"`
	PrevHash  string          `json:"prev_hash"`
	Payload   json.RawMessage `json:"payload"`
}

// EncodeEnvelope serializes an envelope for publishing.
func EncodeEnvelope(env event.Envelope) ([]byte, error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", env.Kind, err)
	}
	return json.Marshal(wireEnvelope{
		Sequence:  env.Sequence,
		Kind:      env.Kind.String(),
		Key:       env.Key,
		Timestamp: env.Timestamp,
		StateHash: hex.EncodeToString(env.StateHash[:]),
		PrevHash:  hex.EncodeToString(env.PrevHash[:]),
		Payload:   payload,
	})
}

// DecodeEnvelope parses wire bytes back into an envelope with a typed payload.
func DecodeEnvelope(data []byte) (event.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return event.Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}

	kind := event.KindFromString(w.Kind)

	evt, err := decodePayload(kind, w.Payload)
	if err != nil {
		return event.Envelope{}, err
	}

	env := event.Envelope{
		Sequence:  w.Sequence,
		Kind:      kind,
		Key:       w.Key,
		Timestamp: w.Timestamp,
		Event:     evt,
	}
	if err := decodeHash(w.StateHash, &env.StateHash); err != nil {
		return event.Envelope{}, fmt.Errorf("parse state_hash: %w", err)
	}
	if err := decodeHash(w.PrevHash, &env.PrevHash); err != nil {
		return event.Envelope{}, fmt.Errorf("parse prev_hash: %w", err)
	}
	return env, nil
}

func decodePayload(kind event.Kind, payload []byte) (event.Event, error) {
	var evt event.Event
	switch kind {
	case event.KindDeposit:
		evt = &event.Deposit{}
	case event.KindWithdraw:
		evt = &event.Withdraw{}
	case event.KindOrder:
		evt = &event.Order{}
	case event.KindCancel:
		evt = &event.Cancel{}
	case event.KindTrade:
		evt = &event.Trade{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("parse %s payload: %w", kind, err)
	}
	return evt, nil
}

func decodeHash(s string, dst *[32]byte) error {
	if s == "" {
		return nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("hash is %d bytes, want 32", len(raw))
	}
	copy(dst[:], raw)
	return nil
}
