package ingest

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrUnreadableSource marks a SQLite input that cannot be opened or queried
// as a document source. The engine skips such inputs.
var ErrUnreadableSource = errors.New("unreadable document source")

// StreamSQLiteDocs calls fn for every row of the results(id, record) table of
// dbPath, in insertion order, naming each document "<dbPath>#<id>". Database
// failures wrap ErrUnreadableSource; an error from fn stops the stream and is
// returned unchanged.
func StreamSQLiteDocs(dbPath string, fn func(name string, raw []byte) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnreadableSource, dbPath, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query("SELECT id, record FROM results ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("%w: query %s: %v", ErrUnreadableSource, dbPath, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("%w: %s: scan row: %v", ErrUnreadableSource, dbPath, err)
		}
		if err := fn(dbPath+"#"+id, raw); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreadableSource, dbPath, err)
	}
	return nil
}
