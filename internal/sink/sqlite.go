package sink

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultBatchSize = 10000

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// TableName turns a descriptor name such as "assembly-hive" into a table
// name ("assembly_hive").
func TableName(name string) string {
	t := strings.Trim(nonIdent.ReplaceAllString(name, "_"), "_")
	if t == "" {
		return "rows"
	}
	return t
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SQLite stages rows in a table with one TEXT column per schema column plus
// a row_num key holding the output order. Inserts are batched into
// transactions.
type SQLite struct {
	db        *sql.DB
	table     string
	tx        *sql.Tx
	stmt      *sql.Stmt
	insertSQL string
	width     int
	batchSize int
	count     int
	rows      int
}

// NewSQLite opens (or creates) the database at dbPath. The table is created
// by WriteHeader, replacing an existing table of the same name.
func NewSQLite(dbPath, table string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Performance tuning for bulk insert
	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLite{db: db, table: TableName(table), batchSize: defaultBatchSize}, nil
}

// Table returns the table rows are written to.
func (s *SQLite) Table() string { return s.table }

func (s *SQLite) WriteHeader(columns []string) error {
	if s.width != 0 {
		return errors.New("sqlite sink: header already written")
	}
	defs := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c) + " TEXT"
		marks[i] = "?"
	}
	table := quoteIdent(s.table)
	ddl := fmt.Sprintf("DROP TABLE IF EXISTS %s; CREATE TABLE %s (row_num INTEGER PRIMARY KEY, %s);",
		table, table, strings.Join(defs, ", "))
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quoteIdent(c)
	}
	s.insertSQL = fmt.Sprintf("INSERT INTO %s (row_num, %s) VALUES (?, %s)",
		table, strings.Join(names, ", "), strings.Join(marks, ", "))
	s.width = len(columns)
	return s.beginTx()
}

func (s *SQLite) beginTx() error {
	var err error
	s.tx, err = s.db.Begin()
	if err != nil {
		return err
	}
	s.stmt, err = s.tx.Prepare(s.insertSQL)
	return err
}

func (s *SQLite) commitTx() error {
	if s.stmt != nil {
		_ = s.stmt.Close()
		s.stmt = nil
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

func (s *SQLite) WriteRow(row []string) error {
	if s.stmt == nil {
		return errors.New("sqlite sink: row before header")
	}
	if len(row) != s.width {
		return fmt.Errorf("sqlite sink: row has %d values, table has %d columns", len(row), s.width)
	}
	args := make([]any, 0, len(row)+1)
	s.rows++
	args = append(args, s.rows)
	for _, v := range row {
		args = append(args, v)
	}
	if _, err := s.stmt.Exec(args...); err != nil {
		return fmt.Errorf("insert row %d: %w", s.rows, err)
	}

	s.count++
	if s.count >= s.batchSize {
		if err := s.commitTx(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if err := s.beginTx(); err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		s.count = 0
	}
	return nil
}

func (s *SQLite) Close() error {
	if err := s.commitTx(); err != nil {
		_ = s.db.Close()
		return err
	}
	if s.rows > 0 {
		log.Printf("sink: staged %d rows in %s", s.rows, s.table)
	}
	return s.db.Close()
}
