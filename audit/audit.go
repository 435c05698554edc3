package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	_ "github.com/glebarez/sqlite"

	"perkledger/core/events"
	"perkledger/core/types"
)

// Index maintains a queryable SQL projection of the ledger event stream. The
// journal stays the source of truth; the index exists so support tooling can
// answer per-token and per-type questions without replaying the chain.
type Index struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("audit storage path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sequence INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    token_id TEXT NOT NULL,
    holder_addr TEXT NOT NULL,
    counterparty TEXT NOT NULL,
    amount TEXT NOT NULL,
    occurred_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_events_token ON ledger_events(token_id, sequence);
CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(event_type, sequence);
`

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Index, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases database resources.
func (i *Index) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}

// Entry is one indexed ledger event. Holder carries the primary subject of
// the event (the holder attribute, or the sender for transfers) and
// Counterparty the secondary address when one exists (receiver or caller).
type Entry struct {
	Sequence     uint64
	Type         string
	TokenID      string
	Holder       string
	Counterparty string
	Amount       string
	OccurredAt   int64
}

// Record indexes a single ledger event under its journal sequence.
func (i *Index) Record(ctx context.Context, sequence uint64, occurredAt int64, evt *types.Event) error {
	if i == nil {
		return fmt.Errorf("audit index not configured")
	}
	if evt == nil {
		return fmt.Errorf("event required")
	}
	eventType := strings.TrimSpace(evt.Type)
	if eventType == "" {
		return fmt.Errorf("event type required")
	}
	attrs := evt.Attributes
	holder := attrs["holder"]
	if holder == "" {
		holder = attrs["from"]
	}
	counterparty := attrs["to"]
	if counterparty == "" {
		counterparty = attrs["caller"]
	}
	_, err := i.db.ExecContext(ctx, `
        INSERT INTO ledger_events(sequence, event_type, token_id, holder_addr, counterparty, amount, occurred_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)
    `, int64(sequence), eventType, attrs["tokenId"], holder, counterparty, attrs["amount"], occurredAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventsByToken returns every indexed event touching the supplied token in
// journal order.
func (i *Index) EventsByToken(ctx context.Context, tokenID *big.Int) ([]Entry, error) {
	if i == nil {
		return nil, fmt.Errorf("audit index not configured")
	}
	if tokenID == nil {
		return nil, fmt.Errorf("token id required")
	}
	rows, err := i.db.QueryContext(ctx, `
        SELECT sequence, event_type, token_id, holder_addr, counterparty, amount, occurred_at
        FROM ledger_events
        WHERE token_id = ?
        ORDER BY sequence ASC
    `, tokenID.String())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// EventsByType returns every indexed event of the supplied type in journal
// order.
func (i *Index) EventsByType(ctx context.Context, eventType string) ([]Entry, error) {
	if i == nil {
		return nil, fmt.Errorf("audit index not configured")
	}
	trimmed := strings.TrimSpace(eventType)
	if trimmed == "" {
		return nil, fmt.Errorf("event type required")
	}
	rows, err := i.db.QueryContext(ctx, `
        SELECT sequence, event_type, token_id, holder_addr, counterparty, amount, occurred_at
        FROM ledger_events
        WHERE event_type = ?
        ORDER BY sequence ASC
    `, trimmed)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// TotalRedeemed sums every redeemed amount recorded in the index. Amounts are
// stored as decimal strings, so the sum is taken in Go rather than SQL to
// avoid integer truncation.
func (i *Index) TotalRedeemed(ctx context.Context) (*big.Int, error) {
	if i == nil {
		return nil, fmt.Errorf("audit index not configured")
	}
	rows, err := i.db.QueryContext(ctx, `
        SELECT amount FROM ledger_events WHERE event_type = ?
    `, events.TypeLoyaltyPointsRedeemed)
	if err != nil {
		return nil, fmt.Errorf("query redeemed amounts: %w", err)
	}
	defer rows.Close()
	total := big.NewInt(0)
	for rows.Next() {
		var stored string
		if err := rows.Scan(&stored); err != nil {
			return nil, fmt.Errorf("scan amount: %w", err)
		}
		stored = strings.TrimSpace(stored)
		if stored == "" {
			continue
		}
		amt := new(big.Int)
		if _, ok := amt.SetString(stored, 10); !ok {
			return nil, fmt.Errorf("parse amount: %q", stored)
		}
		total.Add(total, amt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate amounts: %w", err)
	}
	return total, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry Entry
			seq   int64
		)
		if err := rows.Scan(&seq, &entry.Type, &entry.TokenID, &entry.Holder, &entry.Counterparty, &entry.Amount, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if seq > 0 {
			entry.Sequence = uint64(seq)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}
