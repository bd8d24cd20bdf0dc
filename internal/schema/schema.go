// Package schema loads Schema Descriptors, either built in or from HCL / JSON
// files.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/qcflat/api"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

//go:embed builtin/*.hcl
var builtinFS embed.FS

var (
	ErrUnknownSchema = errors.New("unknown schema")
	ErrInvalid       = errors.New("invalid schema descriptor")
)

// Names lists the built-in descriptors.
func Names() []string {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".hcl"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Builtin returns a fresh copy of a built-in descriptor.
func Builtin(name string) (*api.Descriptor, error) {
	file := path.Join("builtin", name+".hcl")
	src, err := builtinFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (built-ins: %s)", ErrUnknownSchema, name, strings.Join(Names(), ", "))
	}
	return Decode(name+".hcl", src)
}

// Load resolves ref as a built-in name, or as a path to an .hcl or .json
// descriptor file.
func Load(ref string) (*api.Descriptor, error) {
	switch filepath.Ext(ref) {
	case ".hcl", ".json":
		return LoadFile(ref)
	}
	return Builtin(ref)
}

// LoadFile decodes a descriptor file. JSON files use the HCL JSON syntax, so
// a plain {"top_level", "columns", "header_map"} object is accepted as is.
func LoadFile(filename string) (*api.Descriptor, error) {
	var d api.Descriptor
	if err := hclsimple.DecodeFile(filename, nil, &d); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", filename, err)
	}
	return finish(filename, &d)
}

// Decode decodes descriptor source; filename selects the syntax by extension.
func Decode(filename string, src []byte) (*api.Descriptor, error) {
	var d api.Descriptor
	if err := hclsimple.Decode(filename, src, nil, &d); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", filename, err)
	}
	return finish(filename, &d)
}

func finish(filename string, d *api.Descriptor) (*api.Descriptor, error) {
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the shape of a descriptor. Rule semantics are checked when
// a projector is built.
func Validate(d *api.Descriptor) error {
	if d.TopLevel == "" {
		return fmt.Errorf("%w %q: top_level is empty", ErrInvalid, d.Name)
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("%w %q: no columns", ErrInvalid, d.Name)
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c == "" {
			return fmt.Errorf("%w %q: empty column name", ErrInvalid, d.Name)
		}
		if seen[c] {
			return fmt.Errorf("%w %q: duplicate column %q", ErrInvalid, d.Name, c)
		}
		seen[c] = true
	}
	return nil
}
