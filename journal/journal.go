package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"vaultbank/core/events"
)

// Journal persists the bank event stream for audit and reconciliation.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("journal storage path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS bank_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    attributes TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bank_events_type ON bank_events(event_type, recorded_at);
`

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// SetClock overrides the timestamp source. Tests only.
func (j *Journal) SetClock(now func() time.Time) {
	if j == nil || now == nil {
		return
	}
	j.now = now
}

// Record persists a single event.
func (j *Journal) Record(ctx context.Context, evt events.Event) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal not configured")
	}
	attrs, err := json.Marshal(evt.Attributes())
	if err != nil {
		return fmt.Errorf("journal: encode attributes: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
        INSERT INTO bank_events(id, event_type, attributes, recorded_at)
        VALUES(?, ?, ?, ?)
    `, uuid.NewString(), evt.EventType(), string(attrs), j.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("journal: insert event: %w", err)
	}
	return nil
}

// Entry is a persisted event row.
type Entry struct {
	ID         string
	EventType  string
	Attributes map[string]string
	RecordedAt time.Time
}

// List returns up to limit events of the given type, newest first. An empty
// eventType matches all events.
func (j *Journal) List(ctx context.Context, eventType string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
        SELECT id, event_type, attributes, recorded_at
        FROM bank_events
    `
	args := []any{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			attrs    string
			recorded int64
		)
		if err := rows.Scan(&entry.ID, &entry.EventType, &attrs, &recorded); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &entry.Attributes); err != nil {
			return nil, fmt.Errorf("journal: decode attributes: %w", err)
		}
		entry.RecordedAt = time.Unix(recorded, 0).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Recorder adapts the journal to the event emitter interface. Persistence
// failures are logged rather than propagated so the ledger write path never
// blocks on the audit trail.
type Recorder struct {
	journal *Journal
	logger  *slog.Logger
}

// NewRecorder wraps the journal as an emitter.
func NewRecorder(j *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{journal: j, logger: logger}
}

// Emit implements the events emitter interface.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.journal == nil {
		return
	}
	if err := r.journal.Record(context.Background(), evt); err != nil {
		r.logger.Error("journal write failed", "event_type", evt.EventType(), "error", err)
	}
}
