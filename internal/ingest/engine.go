// Package ingest drives a conversion: it enumerates input documents, locates
// the record array of each, flattens and projects every record and hands the
// rows to a sink.
//
// Inputs are JSON files, directories (searched recursively for *.json and
// *.db) and SQLite databases whose results(id, record) table holds one JSON
// document per row. A document that cannot be read or parsed, or that has no
// array under the top-level key, is skipped with a diagnostic.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/qcflat/internal/flatten"
	"github.com/agentic-research/qcflat/internal/project"
	"github.com/agentic-research/qcflat/internal/sink"
	"github.com/buger/jsonparser"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg/oj"
)

// ErrNoRecords reports a document, or a whole run, without records.
var ErrNoRecords = errors.New("no records found")

// Stats summarises a run.
type Stats struct {
	Documents int // documents converted
	Skipped   int // documents skipped
	Records   int // rows written
}

// Engine drives the conversion.
type Engine struct {
	FS        billy.Filesystem
	Projector *project.Projector
	TopLevel  string
	Sink      sink.Sink

	// Progress receives one line per document when set.
	Progress io.Writer
}

func NewEngine(fs billy.Filesystem, topLevel string, p *project.Projector, s sink.Sink) *Engine {
	return &Engine{FS: fs, Projector: p, TopLevel: topLevel, Sink: s}
}

// document is one parsed input document and the raw bytes of its records.
type document struct {
	*project.Document
	records [][]byte
}

// Run converts inputs. The header is written first, so the output is a valid
// table even when no records are found (reported as ErrNoRecords). Counting
// rules trigger a first pass over all inputs.
func (e *Engine) Run(ctx context.Context, inputs []string) (Stats, error) {
	var stats Stats

	files, err := e.collect(inputs)
	if err != nil {
		return stats, err
	}
	if err := e.Sink.WriteHeader(e.Projector.Header()); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	env := project.Env{}
	if e.Projector.NeedsCounts() {
		env.Counts = project.Counts{}
		err := e.each(ctx, files, nil, func(doc *document) error {
			docEnv := project.Env{Doc: doc.Document}
			for _, raw := range doc.records {
				rec, err := flatten.Flatten(raw)
				if err != nil {
					continue
				}
				for col, key := range e.Projector.CountKeys(ctx, rec, docEnv) {
					env.Counts.Add(col, key)
				}
			}
			return nil
		})
		if err != nil {
			return stats, err
		}
	}

	err = e.each(ctx, files, &stats, func(doc *document) error {
		docEnv := project.Env{Doc: doc.Document, Counts: env.Counts}
		n := 0
		for i, raw := range doc.records {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := flatten.Flatten(raw)
			if err != nil {
				log.Printf("ingest: %s record %d: %v", doc.Source, i, err)
				continue
			}
			if err := e.Sink.WriteRow(e.Projector.Project(ctx, rec, docEnv)); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
			n++
		}
		stats.Documents++
		stats.Records += n
		if e.Progress != nil {
			_, _ = fmt.Fprintf(e.Progress, "%s: %d records\n", doc.Source, n)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	if stats.Records == 0 {
		return stats, ErrNoRecords
	}
	return stats, nil
}

// each loads every document in turn. Skips are logged and counted only when
// stats is non-nil, so the counting pass stays quiet.
func (e *Engine) each(ctx context.Context, files []string, stats *Stats, fn func(*document) error) error {
	skip := func(name string, err error) {
		if stats == nil {
			return
		}
		stats.Skipped++
		log.Printf("ingest: skip %s: %v", name, err)
	}
	handle := func(name string, raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := e.parse(name, raw)
		if err != nil {
			skip(name, err)
			return nil
		}
		return fn(doc)
	}

	for _, name := range files {
		if strings.EqualFold(filepath.Ext(name), ".db") {
			// SQLite needs a real path: names are OS paths here.
			err := StreamSQLiteDocs(name, handle)
			if errors.Is(err, ErrUnreadableSource) {
				skip(name, err)
				continue
			}
			if err != nil {
				return err
			}
			continue
		}
		raw, err := util.ReadFile(e.FS, name)
		if err != nil {
			skip(name, err)
			continue
		}
		if err := handle(name, raw); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) parse(name string, raw []byte) (*document, error) {
	root, err := oj.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	arr, typ, _, err := jsonparser.Get(raw, e.TopLevel)
	if err != nil || typ != jsonparser.Array {
		return nil, fmt.Errorf("%w: no %q array", ErrNoRecords, e.TopLevel)
	}

	doc := &document{Document: &project.Document{Source: name, Root: root}}
	_, err = jsonparser.ArrayEach(arr, func(value []byte, vt jsonparser.ValueType, _ int, _ error) {
		if vt == jsonparser.String {
			// ArrayEach strips the quotes of string elements
			value = append(append([]byte{'"'}, value...), '"')
		}
		doc.records = append(doc.records, value)
	})
	if err != nil {
		return nil, fmt.Errorf("read %q array: %w", e.TopLevel, err)
	}
	return doc, nil
}

// collect expands inputs into an ordered file list. Directories contribute
// their *.json and *.db files in lexical order; missing inputs are an error.
func (e *Engine) collect(inputs []string) ([]string, error) {
	var files []string
	for _, in := range inputs {
		fi, err := e.FS.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in, err)
		}
		if !fi.IsDir() {
			files = append(files, in)
			continue
		}
		var found []string
		err = util.Walk(e.FS, in, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".json", ".db":
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", in, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
