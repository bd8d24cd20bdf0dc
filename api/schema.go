package api

// Descriptor is the static configuration of one output table.
// It maps records found in an input document onto an ordered column layout.
type Descriptor struct {
	// Name identifies the descriptor (built-in name or file stem).
	Name string `hcl:"name,optional" json:"name,omitempty"`
	// TopLevel is the document key holding the array of records.
	TopLevel string `hcl:"top_level" json:"top_level"`
	// Columns is the output column order. It is also the header row.
	Columns []string `hcl:"columns" json:"columns"`
	// HeaderMap names an alternate source key per column, probed when the
	// column name itself is absent from the flattened record.
	HeaderMap map[string]string `hcl:"header_map,optional" json:"header_map,omitempty"`
	// Placeholder is emitted for values that cannot be resolved ("" or "-").
	Placeholder string `hcl:"placeholder,optional" json:"placeholder,omitempty"`
	// Rules bind columns to computed values instead of lookups.
	Rules []Rule `hcl:"rule,block" json:"rules,omitempty"`
}

// RuleKind tags the variant of a Rule.
type RuleKind string

const (
	// KindConstant emits Value.
	KindConstant RuleKind = "constant"
	// KindContext copies Field (a key or JSONPath) from the enclosing document.
	KindContext RuleKind = "context"
	// KindDerived applies Transform to the record value at Field.
	KindDerived RuleKind = "derived"
	// KindEnriched asks the enricher for Capability keyed by the value at Field.
	KindEnriched RuleKind = "enriched"
	// KindCount counts records across the whole input sharing the value at Field.
	KindCount RuleKind = "count"
)

// Rule is a computed override for one column.
//
// Field names a flattened record key. A leading "@" refers to another
// output column of the same row instead.
type Rule struct {
	Column      string   `hcl:"column,label" json:"column"`
	Kind        RuleKind `hcl:"kind" json:"kind"`
	Value       string   `hcl:"value,optional" json:"value,omitempty"`
	Field       string   `hcl:"field,optional" json:"field,omitempty"`
	Transform   string   `hcl:"transform,optional" json:"transform,omitempty"`
	Capability  string   `hcl:"capability,optional" json:"capability,omitempty"`
	Placeholder *string  `hcl:"placeholder,optional" json:"placeholder,omitempty"`
}

// Rule returns the rule bound to column, if any.
func (d *Descriptor) Rule(column string) (Rule, bool) {
	for _, r := range d.Rules {
		if r.Column == column {
			return r, true
		}
	}
	return Rule{}, false
}

// HasKind reports whether any rule is of kind k.
func (d *Descriptor) HasKind(k RuleKind) bool {
	for _, r := range d.Rules {
		if r.Kind == k {
			return true
		}
	}
	return false
}
