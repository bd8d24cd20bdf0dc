// Package flatten turns a nested JSON value into a single-level record keyed
// by synthetic path names.
//
// A child key k of an object reached at path P is stored under P_k; element i
// of an array under P_i. The root path is empty, so top-level keys appear
// unprefixed and a bare scalar document is stored under "".
//
// Walking happens on the raw bytes so object keys are visited in document
// order. Two distinct paths can render to the same name when a key itself
// contains "_" ({"a_b":1} and {"a":{"b":2}} both yield "a_b"). The later
// value overwrites the earlier one and keeps the first position.
package flatten

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Sep joins path segments.
const Sep = "_"

// Record is the flattened form of one nested record.
// Values are string, int64, float64, bool or nil (JSON null).
type Record struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{m: orderedmap.New[string, any]()}
}

// Set stores v under key. An existing key keeps its position.
func (r *Record) Set(key string, v any) {
	r.m.Set(key, v)
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	return r.m.Get(key)
}

// Len returns the number of leaves.
func (r *Record) Len() int {
	return r.m.Len()
}

// Keys returns the paths in insertion order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, r.m.Len())
	for p := r.m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Each calls fn for every leaf in insertion order.
func (r *Record) Each(fn func(key string, v any)) {
	for p := r.m.Oldest(); p != nil; p = p.Next() {
		fn(p.Key, p.Value)
	}
}

// Flatten flattens a single JSON value.
// It only fails on malformed input.
func Flatten(data []byte) (*Record, error) {
	value, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	rec := NewRecord()
	if err := walk(rec, value, typ, ""); err != nil {
		return nil, err
	}
	return rec, nil
}

func walk(rec *Record, value []byte, typ jsonparser.ValueType, path string) error {
	switch typ {
	case jsonparser.Object:
		return jsonparser.ObjectEach(value, func(key, child []byte, childType jsonparser.ValueType, _ int) error {
			k, err := jsonparser.ParseString(key)
			if err != nil {
				return fmt.Errorf("flatten: key at %q: %w", path, err)
			}
			return walk(rec, child, childType, join(path, k))
		})
	case jsonparser.Array:
		var (
			i    int
			werr error
		)
		_, err := jsonparser.ArrayEach(value, func(child []byte, childType jsonparser.ValueType, _ int, err error) {
			if werr != nil {
				return
			}
			if err != nil {
				werr = err
				return
			}
			werr = walk(rec, child, childType, join(path, strconv.Itoa(i)))
			i++
		})
		if err != nil {
			return fmt.Errorf("flatten: array at %q: %w", path, err)
		}
		return werr
	default:
		v, err := scalar(value, typ)
		if err != nil {
			return fmt.Errorf("flatten: value at %q: %w", path, err)
		}
		rec.Set(path, v)
		return nil
	}
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + Sep + seg
}

func scalar(value []byte, typ jsonparser.ValueType) (any, error) {
	switch typ {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		if bytes.ContainsAny(value, ".eE") {
			return jsonparser.ParseFloat(value)
		}
		if n, err := jsonparser.ParseInt(value); err == nil {
			return n, nil
		}
		// Integers beyond int64 fall back to float.
		return jsonparser.ParseFloat(value)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", value)
	}
}
