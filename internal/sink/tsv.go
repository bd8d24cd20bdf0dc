package sink

import (
	"io"

	"github.com/agentic-research/qcflat/internal/tsv"
	billy "github.com/go-git/go-billy/v5"
)

// TSV writes rows to a tab-separated file. Each row is flushed as it is
// written so an interrupted run leaves a valid prefix.
type TSV struct {
	w *tsv.Writer
}

// NewTSV creates name in fs; a ".gz" suffix selects gzip.
func NewTSV(fs billy.Filesystem, name string) (*TSV, error) {
	w, err := tsv.Create(fs, name)
	if err != nil {
		return nil, err
	}
	return &TSV{w: w}, nil
}

// NewTSVWriter writes plain TSV to w, e.g. stdout. Close does not close w.
func NewTSVWriter(w io.Writer) *TSV {
	return &TSV{w: tsv.NewWriter(w)}
}

func (s *TSV) WriteHeader(columns []string) error {
	return s.WriteRow(columns)
}

func (s *TSV) WriteRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *TSV) Close() error {
	return s.w.Close()
}
