package eventlog

import (
	"context"
	"sync"

	"DexLedger/internal/event"
)

// Log is the append-only, strictly ordered event log, the single source of
// truth the derived-view engine depends on. Exactly one envelope is appended
// per successful mutating operation; nothing is ever removed or reordered.
//
// Appends come from the exchange engine's single writer. Reads and
// subscriptions are concurrent.
type Log struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []event.Envelope
	hasher  *StateHasher
}

func New() *Log {
	l := &Log{hasher: NewStateHasher()}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Append assigns the next sequence (starting at 1), extends the state-hash
// chain over stateDigest, stores the envelope and wakes subscribers.
func (l *Log) Append(evt event.Event, stateDigest []byte) event.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	prev := l.hasher.PrevHash()

	env := event.Envelope{
		Sequence:  seq,
		Kind:      evt.EventKind(),
		Key:       evt.Key(),
		Timestamp: evt.OccurredAt(),
		StateHash: l.hasher.ComputeHash(seq, stateDigest),
		PrevHash:  prev,
		Event:     evt,
	}

	l.entries = append(l.entries, env)
	l.cond.Broadcast()
	return env
}

// Len returns the number of appended events.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.entries))
}

// Head returns the current state-hash chain tip.
func (l *Log) Head() [32]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasher.PrevHash()
}

// Replay returns a copy of all envelopes with Sequence >= from, in emission
// order. Replay(1) is a full historical replay from genesis.
func (l *Log) Replay(from uint64) []event.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyFrom(from)
}

// copyFrom assumes l.mu is held.
func (l *Log) copyFrom(from uint64) []event.Envelope {
	if from < 1 {
		from = 1
	}
	if from > uint64(len(l.entries)) {
		return nil
	}
	tail := l.entries[from-1:]
	out := make([]event.Envelope, len(tail))
	copy(out, tail)
	return out
}

// Subscribe returns a channel that first replays envelopes from the given
// sequence and then delivers every later append, in order, until ctx is
// cancelled. Delivery is consumer-paced: a slow consumer delays only its own
// channel, never the log. Restarting a subscription from an older point
// redelivers events, so consumers must be idempotent.
//
// With no kinds, all events are delivered; otherwise only the given kinds
// (the cursor still advances over skipped events).
func (l *Log) Subscribe(ctx context.Context, from uint64, kinds ...event.Kind) <-chan event.Envelope {
	if from < 1 {
		from = 1
	}

	var wanted map[event.Kind]bool
	if len(kinds) > 0 {
		wanted = make(map[event.Kind]bool, len(kinds))
		for _, k := range kinds {
			wanted[k] = true
		}
	}

	ch := make(chan event.Envelope, 64)

	// Wake the waiter when the subscriber goes away.
	go func() {
		<-ctx.Done()
		l.cond.Broadcast()
	}()

	go func() {
		defer close(ch)
		cursor := from

		for {
			l.mu.Lock()
			for uint64(len(l.entries)) < cursor && ctx.Err() == nil {
				l.cond.Wait()
			}
			if ctx.Err() != nil {
				l.mu.Unlock()
				return
			}
			batch := l.copyFrom(cursor)
			l.mu.Unlock()

			for _, env := range batch {
				if wanted != nil && !wanted[env.Kind] {
					continue
				}
				select {
				case ch <- env:
				case <-ctx.Done():
					return
				}
			}
			cursor += uint64(len(batch))
		}
	}()

	return ch
}
