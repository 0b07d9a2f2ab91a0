package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"DexLedger/internal/event"
)

// ArchiveWriter writes events and projection rows to Postgres. The event
// archive uses multi-row INSERT with ON CONFLICT DO NOTHING so replays and
// redeliveries are idempotent.
type ArchiveWriter struct {
	db *sql.DB
}

// EventRow is one row in event_log.events.
type EventRow struct {
	Sequence  uint64
	Kind      string
	Key       string
	Payload   []byte // JSON-encoded event payload
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

func NewArchiveWriter(db *sql.DB) *ArchiveWriter {
	return &ArchiveWriter{db: db}
}

// RowFromEnvelope converts an envelope into its archive row.
func RowFromEnvelope(env event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal %s payload: %w", env.Kind, err)
	}
	return EventRow{
		Sequence:  env.Sequence,
		Kind:      env.Kind.String(),
		Key:       env.Key,
		Payload:   payload,
		StateHash: append([]byte(nil), env.StateHash[:]...),
		PrevHash:  append([]byte(nil), env.PrevHash[:]...),
		Timestamp: time.Unix(int64(env.Timestamp), 0).UTC(),
	}, nil
}

// WriteEventBatch writes a batch of rows to event_log.events inside tx.
func (w *ArchiveWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, kind, key, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)

	for i, r := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			r.Sequence, r.Kind, r.Key, r.Payload,
			r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ApplyProjection folds one envelope into the projection tables inside tx.
// Every statement is an upsert or a conditional update, so reapplying the
// same envelope is a no-op.
func (w *ArchiveWriter) ApplyProjection(ctx context.Context, tx *sql.Tx, env event.Envelope) error {
	switch evt := env.Event.(type) {
	case *event.Deposit:
		return w.upsertBalance(ctx, tx, string(evt.Asset), evt.User, evt.Balance, env.Sequence)
	case *event.Withdraw:
		return w.upsertBalance(ctx, tx, string(evt.Asset), evt.User, evt.Balance, env.Sequence)
	case *event.Order:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.orders
				(id, maker, token_get, amount_get, token_give, amount_give, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'open', $7)
			ON CONFLICT (id) DO NOTHING
		`, evt.ID, evt.User, string(evt.TokenGet), evt.AmountGet,
			string(evt.TokenGive), evt.AmountGive, time.Unix(int64(evt.Timestamp), 0).UTC())
		return err
	case *event.Cancel:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.orders SET status = 'cancelled'
			WHERE id = $1 AND status = 'open'
		`, evt.OrderID)
		return err
	case *event.Trade:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.trades
				(order_id, maker, filler, token_get, amount_get, token_give, amount_give, traded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (order_id) DO NOTHING
		`, evt.OrderID, evt.User, evt.UserFill, string(evt.TokenGet), evt.AmountGet,
			string(evt.TokenGive), evt.AmountGive, time.Unix(int64(evt.Timestamp), 0).UTC()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.orders SET status = 'filled'
			WHERE id = $1 AND status = 'open'
		`, evt.OrderID)
		return err
	default:
		return fmt.Errorf("envelope %d: unknown payload %T", env.Sequence, env.Event)
	}
}

// upsertBalance keeps the latest balance snapshot per (asset, account).
// Snapshots from older sequences never overwrite newer ones.
func (w *ArchiveWriter) upsertBalance(ctx context.Context, tx *sql.Tx, asset, account string, balance, seq uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (asset, account, balance, as_of_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset, account) DO UPDATE
			SET balance = EXCLUDED.balance, as_of_sequence = EXCLUDED.as_of_sequence
			WHERE projections.balances.as_of_sequence < EXCLUDED.as_of_sequence
	`, asset, account, balance, seq)
	return err
}

// Watermark returns the highest archived sequence, zero for an empty archive.
func (w *ArchiveWriter) Watermark(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM event_log.events`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}
