package reconcile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// ErrColumnNotFound reports a configured column missing from a table.
var ErrColumnNotFound = errors.New("column not found")

// Table is a headed TSV table indexed by one identifier column.
// Each identifier maps to a bitmap of the data rows holding it.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
	Col    int

	index map[string]*roaring.Bitmap
}

// NewTable indexes rows (header first) by the column named col.
func NewTable(name string, rows [][]string, col string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %q in %s (empty table)", ErrColumnNotFound, col, name)
	}
	t := &Table{Name: name, Header: rows[0], Rows: rows[1:], Col: -1}
	for i, h := range t.Header {
		if h == col {
			t.Col = i
			break
		}
	}
	if t.Col < 0 {
		return nil, fmt.Errorf("%w: %q in %s (columns: %s)", ErrColumnNotFound, col, name, strings.Join(t.Header, ", "))
	}

	t.index = make(map[string]*roaring.Bitmap)
	for i, row := range t.Rows {
		id := strings.TrimSpace(cell(row, t.Col))
		if id == "" {
			continue
		}
		bm, ok := t.index[id]
		if !ok {
			bm = roaring.New()
			t.index[id] = bm
		}
		bm.Add(uint32(i))
	}
	return t, nil
}

// Has reports whether id occurs in the identifier column.
func (t *Table) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Len returns the number of distinct identifiers.
func (t *Table) Len() int {
	return len(t.index)
}

// Subset returns the header and, in table order, every row whose identifier
// is a key of remap, with the identifier replaced by its value.
func (t *Table) Subset(remap map[string]string) [][]string {
	rows := roaring.New()
	for id := range remap {
		if bm, ok := t.index[id]; ok {
			rows.Or(bm)
		}
	}

	out := make([][]string, 0, rows.GetCardinality()+1)
	out = append(out, t.Header)
	it := rows.Iterator()
	for it.HasNext() {
		src := t.Rows[it.Next()]
		row := make([]string, max(len(src), t.Col+1))
		copy(row, src)
		row[t.Col] = remap[strings.TrimSpace(row[t.Col])]
		out = append(out, row)
	}
	return out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// Entry is one accession to check, with an optional organism label.
type Entry struct {
	ID       string
	Organism string
}

// ReadEntries extracts entries from an input list. With header, idCol and
// orgCol name columns of the first row; without, a numeric column is an
// index. orgCol may be empty. Blank identifiers are dropped.
func ReadEntries(rows [][]string, header bool, idCol, orgCol string) ([]Entry, error) {
	var names []string
	if header {
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: %q in input (empty table)", ErrColumnNotFound, idCol)
		}
		names, rows = rows[0], rows[1:]
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}

	resolve := func(col string) (int, error) {
		if header {
			for i, n := range names {
				if n == col {
					return i, nil
				}
			}
			return -1, fmt.Errorf("%w: %q in input (columns: %s)", ErrColumnNotFound, col, strings.Join(names, ", "))
		}
		i, err := strconv.Atoi(col)
		if err != nil || i < 0 || (len(rows) > 0 && i >= width) {
			return -1, fmt.Errorf("%w: %q in headerless input", ErrColumnNotFound, col)
		}
		return i, nil
	}

	idIdx, err := resolve(idCol)
	if err != nil {
		return nil, err
	}
	orgIdx := -1
	if orgCol != "" {
		if orgIdx, err = resolve(orgCol); err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{ID: strings.TrimSpace(cell(r, idIdx))}
		if e.ID == "" {
			continue
		}
		if orgIdx >= 0 {
			e.Organism = strings.TrimSpace(cell(r, orgIdx))
		}
		entries = append(entries, e)
	}
	return entries, nil
}
