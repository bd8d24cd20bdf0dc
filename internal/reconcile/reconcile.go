// Package reconcile repairs assembly accessions between tables produced
// independently.
//
// An accession absent from a target table may be present under its GenBank
// form: GCF_<digits>.<v> is searched as GCA_<digits>.<v+i> for i = 0..max,
// in that table only, the lowest i winning. Only GCF accessions are repaired.
// Repaired rows are re-labelled with the requested GCF accession in a subset
// of the table, so downstream joins succeed.
package reconcile

// State is the outcome of one accession against one table.
type State int

const (
	Unchecked State = iota
	PresentAsIs
	FoundAlternate
	Unresolved
)

func (s State) String() string {
	switch s {
	case PresentAsIs:
		return "present"
	case FoundAlternate:
		return "found-alternate"
	case Unresolved:
		return "unresolved"
	default:
		return "unchecked"
	}
}

// Set is a target identifier set.
type Set interface {
	Has(id string) bool
}

// Result is the outcome of one accession against one table.
type Result struct {
	State State
	// Candidate is the matching GCA accession, or the i = 0 candidate kept
	// for display when none matched.
	Candidate string
	// Increment is the version offset of a found alternate.
	Increment int
}

// Search resolves id against one target set.
func Search(id string, target Set, maxIncrements int) Result {
	acc, ok := ParseAccession(id)
	if !ok || acc.Prefix != PrefixGCF {
		return Result{State: Unresolved}
	}
	if target.Has(id) {
		return Result{State: PresentAsIs}
	}
	for i := 0; i <= maxIncrements; i++ {
		if cand := acc.GenBank(i); target.Has(cand) {
			return Result{State: FoundAlternate, Candidate: cand, Increment: i}
		}
	}
	return Result{State: Unresolved, Candidate: acc.GenBank(0)}
}

// ReportHeader is the header of the discrepancy report.
var ReportHeader = []string{"missing_id", "organism", "gca_candidate", "gca_present"}

// ReportRow is one unresolved or partially resolved accession.
type ReportRow struct {
	MissingID    string
	Organism     string
	GCACandidate string
	GCAPresent   bool
}

func (r ReportRow) Fields() []string {
	present := "no"
	if r.GCAPresent {
		present = "yes"
	}
	return []string{r.MissingID, r.Organism, r.GCACandidate, present}
}

// Reconciler checks accessions against a fixed list of tables and collects
// the repairs made in each.
type Reconciler struct {
	tables        []*Table
	maxIncrements int
	remaps        []map[string]string // per table: found GCA -> requested GCF
}

func New(maxIncrements int, tables ...*Table) *Reconciler {
	r := &Reconciler{tables: tables, maxIncrements: maxIncrements, remaps: make([]map[string]string, len(tables))}
	for i := range r.remaps {
		r.remaps[i] = make(map[string]string)
	}
	return r
}

// Check resolves e against every table. It returns the per-table results and
// the report row, if e must be reported.
func (r *Reconciler) Check(e Entry) ([]Result, *ReportRow) {
	results := make([]Result, len(r.tables))

	acc, ok := ParseAccession(e.ID)
	if !ok || acc.Prefix == PrefixGCA {
		// never repaired
		for i := range results {
			results[i] = Result{State: Unresolved}
		}
		return results, &ReportRow{MissingID: e.ID, Organism: e.Organism}
	}

	row := &ReportRow{MissingID: e.ID, Organism: e.Organism}
	unresolved := false
	for i, t := range r.tables {
		res := Search(e.ID, t, r.maxIncrements)
		results[i] = res
		switch res.State {
		case FoundAlternate:
			r.remaps[i][res.Candidate] = e.ID
			row.GCAPresent = true
		case Unresolved:
			unresolved = true
		}
		if row.GCACandidate == "" {
			row.GCACandidate = res.Candidate
		}
	}
	if !unresolved {
		return results, nil
	}
	return results, row
}

// Run checks every entry and returns the report rows in input order.
func (r *Reconciler) Run(entries []Entry) []ReportRow {
	var report []ReportRow
	for _, e := range entries {
		if _, row := r.Check(e); row != nil {
			report = append(report, *row)
		}
	}
	return report
}

// Repairs returns how many accessions were repaired in table i.
func (r *Reconciler) Repairs(i int) int {
	return len(r.remaps[i])
}

// Subset returns the repaired rows of table i, header first, or nil when
// nothing in that table was repaired.
func (r *Reconciler) Subset(i int) [][]string {
	if len(r.remaps[i]) == 0 {
		return nil
	}
	return r.tables[i].Subset(r.remaps[i])
}
