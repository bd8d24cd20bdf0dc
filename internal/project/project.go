// Package project maps flattened records onto the ordered columns of a
// descriptor.
//
// Each column resolves through the first applicable step:
//
//  1. a rule bound to the column (constant, document context, derived field,
//     enrichment, or a whole-input count),
//  2. the column name itself in the flattened record,
//  3. the column's header_map alias in the flattened record,
//  4. the placeholder.
//
// Projection never fails. Anything that cannot be resolved, including
// enrichment errors, becomes the placeholder.
package project

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/agentic-research/qcflat/api"
	"github.com/agentic-research/qcflat/internal/flatten"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

var (
	ErrNoEnricher          = errors.New("descriptor needs enrichment but no enricher is configured")
	ErrUnknownTransform    = errors.New("unknown transform")
	ErrUnknownRule         = errors.New("unknown rule kind")
	ErrUnknownCapability   = errors.New("unknown enrichment capability")
	ErrRuleWithoutColumn   = errors.New("rule bound to a column the descriptor does not emit")
	ErrDuplicateRuleColumn = errors.New("more than one rule bound to a column")
)

// Enricher resolves values that live outside the input document.
type Enricher interface {
	// Enrich returns the value of capability for key. An empty string means
	// the remote record exists but carries no such value.
	Enrich(ctx context.Context, capability, key string) (string, error)
	// Supports reports whether capability is known.
	Supports(capability string) bool
}

// Document is the input document a record was taken from.
type Document struct {
	Source string // file or database row, for diagnostics
	Root   any    // parsed document, queried by context rules
}

// Counts holds, per count-rule column, how many records share each key.
type Counts map[string]map[string]int

// Add records one occurrence of key for column.
func (c Counts) Add(column, key string) {
	m, ok := c[column]
	if !ok {
		m = make(map[string]int)
		c[column] = m
	}
	m[key]++
}

// Env is the run-level context of one projection.
type Env struct {
	Doc    *Document
	Counts Counts
}

type compiledRule struct {
	api.Rule
	transform   Transform
	path        jp.Expr
	placeholder string
}

// Projector projects flattened records for a single descriptor.
type Projector struct {
	desc        *api.Descriptor
	enricher    Enricher
	rules       map[string]*compiledRule
	countCols   []string
	placeholder string
}

// New validates desc and prepares its rules. enricher may be nil when the
// descriptor has no enrichment rules.
func New(desc *api.Descriptor, enricher Enricher) (*Projector, error) {
	p := &Projector{
		desc:        desc,
		enricher:    enricher,
		rules:       make(map[string]*compiledRule, len(desc.Rules)),
		placeholder: desc.Placeholder,
	}

	columns := make(map[string]bool, len(desc.Columns))
	for _, c := range desc.Columns {
		columns[c] = true
	}

	for _, r := range desc.Rules {
		if !columns[r.Column] {
			return nil, fmt.Errorf("%w: %q", ErrRuleWithoutColumn, r.Column)
		}
		if _, dup := p.rules[r.Column]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRuleColumn, r.Column)
		}
		cr := &compiledRule{Rule: r, placeholder: desc.Placeholder}
		if r.Placeholder != nil {
			cr.placeholder = *r.Placeholder
		}

		t, err := ParseTransform(r.Transform)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Column, err)
		}
		cr.transform = t

		switch r.Kind {
		case api.KindConstant:
		case api.KindContext:
			expr, err := contextPath(r.Field)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Column, err)
			}
			cr.path = expr
		case api.KindDerived, api.KindCount:
			if r.Field == "" {
				return nil, fmt.Errorf("rule %q: %s rule needs a field", r.Column, r.Kind)
			}
			if r.Kind == api.KindCount {
				p.countCols = append(p.countCols, r.Column)
			}
		case api.KindEnriched:
			if r.Field == "" {
				return nil, fmt.Errorf("rule %q: enriched rule needs a field", r.Column)
			}
			if enricher == nil {
				return nil, fmt.Errorf("rule %q: %w", r.Column, ErrNoEnricher)
			}
			if !enricher.Supports(r.Capability) {
				return nil, fmt.Errorf("rule %q: %w: %q", r.Column, ErrUnknownCapability, r.Capability)
			}
		default:
			return nil, fmt.Errorf("rule %q: %w: %q", r.Column, ErrUnknownRule, r.Kind)
		}
		p.rules[r.Column] = cr
	}
	return p, nil
}

// contextPath accepts a plain document key or a JSONPath expression.
func contextPath(field string) (jp.Expr, error) {
	if field == "" {
		return nil, errors.New("context rule needs a field")
	}
	if !strings.HasPrefix(field, "$") {
		field = "$." + field
	}
	expr, err := jp.ParseString(field)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", field, err)
	}
	return expr, nil
}

// Header returns the output column names.
func (p *Projector) Header() []string {
	return p.desc.Columns
}

// NeedsCounts reports whether projection depends on a first pass over the
// whole input.
func (p *Projector) NeedsCounts() bool {
	return len(p.countCols) > 0
}

// CountKeys returns, for every count rule, the key rec contributes. Records
// with a missing or empty key are not counted.
func (p *Projector) CountKeys(ctx context.Context, rec *flatten.Record, env Env) map[string]string {
	if len(p.countCols) == 0 {
		return nil
	}
	row := p.newRow(ctx, rec, env)
	keys := make(map[string]string, len(p.countCols))
	for _, col := range p.countCols {
		if key, ok := row.ruleKey(p.rules[col]); ok && key != "" {
			keys[col] = key
		}
	}
	return keys
}

// Project returns one value per column, in column order.
func (p *Projector) Project(ctx context.Context, rec *flatten.Record, env Env) []string {
	row := p.newRow(ctx, rec, env)
	out := make([]string, len(p.desc.Columns))
	for i, col := range p.desc.Columns {
		v, ok := row.resolve(col)
		if !ok {
			out[i] = row.placeholderFor(col)
			continue
		}
		out[i] = Format(v, row.placeholderFor(col))
	}
	return out
}

// Format renders a resolved value. Floats get four decimals.
func Format(v any, placeholder string) string {
	switch x := v.(type) {
	case nil:
		return placeholder
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', 4, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', 4, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		return oj.JSON(x)
	default:
		return fmt.Sprint(x)
	}
}

// row resolves the columns of one record, memoising results so "@column"
// references and count keys do not repeat enrichment calls.
type row struct {
	p         *Projector
	ctx       context.Context
	rec       *flatten.Record
	env       Env
	resolved  map[string]any
	missing   map[string]bool
	resolving map[string]bool
}

func (p *Projector) newRow(ctx context.Context, rec *flatten.Record, env Env) *row {
	return &row{
		p:         p,
		ctx:       ctx,
		rec:       rec,
		env:       env,
		resolved:  make(map[string]any),
		missing:   make(map[string]bool),
		resolving: make(map[string]bool),
	}
}

func (r *row) placeholderFor(col string) string {
	if cr, ok := r.p.rules[col]; ok {
		return cr.placeholder
	}
	return r.p.placeholder
}

func (r *row) resolve(col string) (any, bool) {
	if v, ok := r.resolved[col]; ok {
		return v, true
	}
	if r.missing[col] || r.resolving[col] {
		return nil, false
	}
	r.resolving[col] = true
	v, ok := r.lookup(col)
	delete(r.resolving, col)
	if ok && v != nil {
		r.resolved[col] = v
		return v, true
	}
	r.missing[col] = true
	return nil, false
}

func (r *row) lookup(col string) (any, bool) {
	if cr, ok := r.p.rules[col]; ok {
		return r.apply(cr)
	}
	if v, ok := r.rec.Get(col); ok && v != nil {
		return v, true
	}
	if alias, ok := r.p.desc.HeaderMap[col]; ok {
		if v, ok := r.rec.Get(alias); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// field reads a record key, or another column of the row for "@name".
func (r *row) field(name string) (string, bool) {
	var (
		v  any
		ok bool
	)
	if col, isRef := strings.CutPrefix(name, "@"); isRef {
		v, ok = r.resolve(col)
	} else {
		v, ok = r.rec.Get(name)
	}
	if !ok || v == nil {
		return "", false
	}
	return Format(v, ""), true
}

// ruleKey is the transformed field value a derived, enriched or count rule
// works on.
func (r *row) ruleKey(cr *compiledRule) (string, bool) {
	raw, ok := r.field(cr.Field)
	if !ok {
		return "", false
	}
	return cr.transform(raw), true
}

func (r *row) apply(cr *compiledRule) (any, bool) {
	switch cr.Kind {
	case api.KindConstant:
		return cr.Value, true

	case api.KindContext:
		if r.env.Doc == nil {
			return nil, false
		}
		results := cr.path.Get(r.env.Doc.Root)
		if len(results) == 0 || results[0] == nil {
			return nil, false
		}
		if s, isStr := results[0].(string); isStr {
			return cr.transform(s), true
		}
		return results[0], true

	case api.KindDerived:
		key, ok := r.ruleKey(cr)
		if !ok || key == "" {
			return nil, false
		}
		return key, true

	case api.KindEnriched:
		key, ok := r.ruleKey(cr)
		if !ok || key == "" {
			return nil, false
		}
		v, err := r.p.enricher.Enrich(r.ctx, cr.Capability, key)
		if err != nil {
			source := ""
			if r.env.Doc != nil {
				source = r.env.Doc.Source
			}
			log.Printf("project: %s %s(%q) in %s: %v", cr.Column, cr.Capability, key, source, err)
			return nil, false
		}
		if v == "" {
			return nil, false
		}
		return v, true

	case api.KindCount:
		key, _ := r.ruleKey(cr)
		return int64(r.env.Counts[cr.Column][key]), true
	}
	return nil, false
}
