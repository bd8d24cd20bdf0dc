// Package tsv reads and writes tab-separated tables. Names ending in ".gz"
// are gzip compressed.
//
// Written fields are never quoted; tabs and line breaks inside a value are
// replaced by spaces so every row stays on one line with a fixed field count.
package tsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/klauspost/pgzip"
)

// IsGzip reports whether name selects gzip compression.
func IsGzip(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".gz")
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// Writer writes rows.
type Writer struct {
	buf     *bufio.Writer
	closers []io.Closer // innermost first
}

// NewWriter writes plain TSV to w. Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(w)}
}

// Create creates or truncates name in fs.
func Create(fs billy.Filesystem, name string) (*Writer, error) {
	if dir := filepath.Dir(name); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	if !IsGzip(name) {
		return &Writer{buf: bufio.NewWriter(f), closers: []io.Closer{f}}, nil
	}
	gz := pgzip.NewWriter(f)
	return &Writer{buf: bufio.NewWriter(gz), closers: []io.Closer{gz, f}}, nil
}

// Write writes one row.
func (w *Writer) Write(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.buf.WriteByte('\t'); err != nil {
				return err
			}
		}
		if strings.ContainsAny(f, "\t\r\n") {
			f = fieldCleaner.Replace(f)
		}
		if _, err := w.buf.WriteString(f); err != nil {
			return err
		}
	}
	return w.buf.WriteByte('\n')
}

// Flush pushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes and closes everything Create opened.
func (w *Writer) Close() error {
	err := w.buf.Flush()
	for _, c := range w.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	w.closers = nil
	return err
}

// Reader reads rows. Rows may have differing field counts.
type Reader struct {
	csv     *csv.Reader
	closers []io.Closer
}

// NewReader reads plain TSV from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{csv: newCSV(r)}
}

func newCSV(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}

// Open opens name in fs for reading.
func Open(fs billy.Filesystem, name string) (*Reader, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if !IsGzip(name) {
		return &Reader{csv: newCSV(f), closers: []io.Closer{f}}, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &Reader{csv: newCSV(gz), closers: []io.Closer{gz, f}}, nil
}

// Read returns the next row, or io.EOF.
func (r *Reader) Read() ([]string, error) {
	return r.csv.Read()
}

// ReadAll returns the remaining rows.
func (r *Reader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		row, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

// Close closes everything Open opened.
func (r *Reader) Close() error {
	var err error
	for _, c := range r.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	r.closers = nil
	return err
}

// ReadFile reads a whole table.
func ReadFile(fs billy.Filesystem, name string) ([][]string, error) {
	r, err := Open(fs, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return rows, nil
}

// WriteFile writes a whole table.
func WriteFile(fs billy.Filesystem, name string, rows [][]string) error {
	w, err := Create(fs, name)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			_ = w.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
