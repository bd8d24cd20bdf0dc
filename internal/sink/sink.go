// Package sink receives projected rows. A TSV sink produces the repository
// upload file; a SQLite sink stages the same rows in a table for ad hoc
// queries. Tee fans one stream out to several sinks.
package sink

import "errors"

// Sink consumes one table: a header followed by rows of the same width.
type Sink interface {
	WriteHeader(columns []string) error
	WriteRow(row []string) error
	Close() error
}

type tee []Sink

// Tee writes every call to each sink in order, stopping at the first error.
func Tee(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return tee(sinks)
}

func (t tee) WriteHeader(columns []string) error {
	for _, s := range t {
		if err := s.WriteHeader(columns); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) WriteRow(row []string) error {
	for _, s := range t {
		if err := s.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, even after a failure.
func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
