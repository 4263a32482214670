package store

import (
	"context"
	"database/sql"
	"time"

	"quicklabel/internal/model"

	_ "modernc.org/sqlite"
)

// openHistory opens (and migrates) the append-only history database.
func (s Store) openHistory(ctx context.Context) (*sql.DB, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.historyPath())
	if err != nil {
		return nil, err
	}
	// WAL enables one writer + many readers; busy_timeout avoids
	// "database is locked" flakiness when a history reader races a save.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at_unixms INTEGER NOT NULL,
		action TEXT NOT NULL,
		image_id TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT ''
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// AppendHistory records one action in the history log. History is advisory:
// callers treat failures as non-fatal and keep the in-memory session
// authoritative.
func (s Store) AppendHistory(ctx context.Context, action, imageID, details string) error {
	db, err := s.openHistory(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO history(at_unixms, action, image_id, details) VALUES(?, ?, ?, ?)`,
		time.Now().UTC().UnixMilli(), action, imageID, details)
	return err
}

// ReadHistory returns the most recent events, newest first. limit <= 0
// returns everything.
func (s Store) ReadHistory(ctx context.Context, limit int) ([]model.HistoryEvent, error) {
	db, err := s.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q := `SELECT id, at_unixms, action, image_id, details FROM history ORDER BY id DESC`
	var rows *sql.Rows
	if limit > 0 {
		rows, err = db.QueryContext(ctx, q+` LIMIT ?`, limit)
	} else {
		rows, err = db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryEvent
	for rows.Next() {
		var ev model.HistoryEvent
		var ms int64
		if err := rows.Scan(&ev.ID, &ms, &ev.Action, &ev.ImageID, &ev.Details); err != nil {
			return nil, err
		}
		ev.At = time.UnixMilli(ms).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
