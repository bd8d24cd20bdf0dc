package reconcile

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentic-research/qcflat/internal/tsv"
	billy "github.com/go-git/go-billy/v5"
)

const DefaultMaxIncrements = 10

// TableSpec names a target table and its identifier column.
type TableSpec struct {
	Path string
	Col  string
	// UpdatedOut overrides the subset path, see UpdatedPath.
	UpdatedOut string
}

// Options configures a reconciliation run over files.
type Options struct {
	Input         string
	NoHeader      bool
	IDCol         string
	OrgCol        string
	Tables        []TableSpec
	MaxIncrements int
	// Out is the report path. Empty writes the report to the run's writer.
	Out string
}

// Summary describes what a run wrote.
type Summary struct {
	Entries    int
	Report     []ReportRow
	ReportPath string
	Subsets    []SubsetResult
}

// SubsetResult is the outcome for one target table.
type SubsetResult struct {
	Table string
	Path  string // empty when nothing was repaired
	Rows  int
}

// UpdatedPath is the default subset path of a table:
// x.tsv -> x_updated.tsv, x.tsv.gz -> x_updated.tsv.gz, x -> x_updated.tsv.
func UpdatedPath(path string) string {
	for _, ext := range []string{".tsv.gz", ".tsv"} {
		if base, ok := strings.CutSuffix(path, ext); ok {
			return base + "_updated" + ext
		}
	}
	return path + "_updated.tsv"
}

// Run loads the input list and tables from fs, reconciles them and writes the
// report and subsets. Column mismatches fail before anything is written.
func Run(fs billy.Filesystem, opts Options, stdout io.Writer) (*Summary, error) {
	rows, err := tsv.ReadFile(fs, opts.Input)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	entries, err := ReadEntries(rows, !opts.NoHeader, opts.IDCol, opts.OrgCol)
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, len(opts.Tables))
	for i, spec := range opts.Tables {
		rows, err := tsv.ReadFile(fs, spec.Path)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", spec.Path, err)
		}
		if tables[i], err = NewTable(spec.Path, rows, spec.Col); err != nil {
			return nil, err
		}
	}

	r := New(opts.MaxIncrements, tables...)
	sum := &Summary{Entries: len(entries), Report: r.Run(entries)}

	report := make([][]string, 0, len(sum.Report)+1)
	report = append(report, ReportHeader)
	for _, row := range sum.Report {
		report = append(report, row.Fields())
	}
	if opts.Out == "" {
		w := tsv.NewWriter(stdout)
		for _, row := range report {
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write report: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
	} else {
		if err := tsv.WriteFile(fs, opts.Out, report); err != nil {
			return nil, err
		}
		sum.ReportPath = opts.Out
	}

	for i, spec := range opts.Tables {
		res := SubsetResult{Table: spec.Path}
		if subset := r.Subset(i); len(subset) > 1 {
			res.Path = spec.UpdatedOut
			if res.Path == "" {
				res.Path = UpdatedPath(spec.Path)
			}
			res.Rows = len(subset) - 1
			if err := tsv.WriteFile(fs, res.Path, subset); err != nil {
				return nil, err
			}
		}
		sum.Subsets = append(sum.Subsets, res)
	}
	return sum, nil
}
