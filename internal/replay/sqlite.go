package replay

import (
	"context"
	"database/sql"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"rayview/internal/hub"
	"rayview/internal/util"
)

// Sink journals events into a sqlite database instead of (or next to)
// the JSONL file. One row per entry id; later events for the same
// entry replace the row, so the table always holds the final state.
type Sink struct {
	db *sql.DB
}

// OpenSink opens or creates the database at path.
func OpenSink(ctx context.Context, path string) (*Sink, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			entry_id INTEGER PRIMARY KEY,
			received_at_unixms INTEGER NOT NULL,
			origin TEXT NOT NULL,
			session_id TEXT NOT NULL,
			screen_id TEXT NOT NULL,
			kind INTEGER NOT NULL,
			kind_label TEXT NOT NULL,
			raw_type TEXT,
			color TEXT,
			label TEXT,
			marker TEXT,
			count INTEGER NOT NULL,
			values_json TEXT NOT NULL,
			clipboard TEXT,
			merged_into INTEGER NOT NULL,
			hidden INTEGER NOT NULL,
			removed INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_screen ON entries(screen_id, entry_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append upserts one record.
func (s *Sink) Append(ctx context.Context, rec Record) error {
	valuesJSON, err := sonic.MarshalString(rec.Values)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entries(
			entry_id, received_at_unixms, origin, session_id, screen_id,
			kind, kind_label, raw_type, color, label, marker, count,
			values_json, clipboard, merged_into, hidden, removed
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.EntryID, rec.ReceivedAt.UnixMilli(), rec.Origin, rec.SessionID, rec.ScreenID,
		rec.Kind, rec.KindLabel, rec.RawType, rec.ColorTag, rec.Label, rec.Marker, rec.Count,
		valuesJSON, rec.Clipboard, rec.MergedInto, boolInt(rec.Hidden), boolInt(rec.Removed))
	return err
}

// ReadAll returns every row in entry order.
func (s *Sink) ReadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, received_at_unixms, origin, session_id, screen_id,
		       kind, kind_label, raw_type, color, label, marker, count,
		       values_json, clipboard, merged_into, hidden, removed
		FROM entries ORDER BY entry_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var tsMs int64
		var valuesJSON string
		var hidden, removed int
		if err := rows.Scan(&rec.EntryID, &tsMs, &rec.Origin, &rec.SessionID, &rec.ScreenID,
			&rec.Kind, &rec.KindLabel, &rec.RawType, &rec.ColorTag, &rec.Label, &rec.Marker, &rec.Count,
			&valuesJSON, &rec.Clipboard, &rec.MergedInto, &hidden, &removed); err != nil {
			return nil, err
		}
		rec.ReceivedAt = time.UnixMilli(tsMs).UTC()
		rec.Hidden = hidden != 0
		rec.Removed = removed != 0
		if valuesJSON != "" && valuesJSON != "null" {
			if err := sonic.UnmarshalString(valuesJSON, &rec.Values); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Consume journals every event delivered on the subscription until it
// is closed.
func (s *Sink) Consume(sub *hub.Subscription) {
	for ev := range sub.C() {
		if err := s.Append(context.Background(), FromEntry(ev.Entry)); err != nil {
			util.LogWarnf("replay: sqlite append failed: %v", err)
		}
	}
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
