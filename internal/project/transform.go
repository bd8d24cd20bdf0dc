package project

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform is a pure string rewrite applied to a field before it is emitted
// or used as a lookup key.
type Transform func(string) string

var readSuffix = regexp.MustCompile(`(_\d+)?\.(fasta|fastq)$`)

var firstDigits = regexp.MustCompile(`\d+`)

var simpleTransforms = map[string]Transform{
	"":                  func(s string) string { return s },
	"strip_read_suffix": func(s string) string { return readSuffix.ReplaceAllString(s, "") },
	"digits":            func(s string) string { return firstDigits.FindString(s) },
	"lower":             strings.ToLower,
	"upper":             strings.ToUpper,
	"trim":              strings.TrimSpace,
}

var argTransforms = map[string]func(arg string) Transform{
	// after_last:| turns "A/duck/2024|EPI_ISL_1" into "EPI_ISL_1".
	"after_last": func(sep string) Transform {
		return func(s string) string {
			if i := strings.LastIndex(s, sep); i >= 0 {
				return s[i+len(sep):]
			}
			return s
		}
	},
	"after_first": func(sep string) Transform {
		return func(s string) string {
			if _, after, ok := strings.Cut(s, sep); ok {
				return strings.TrimSpace(after)
			}
			return s
		}
	},
	"before_first": func(sep string) Transform {
		return func(s string) string {
			before, _, _ := strings.Cut(s, sep)
			return strings.TrimSpace(before)
		}
	},
	"trim_prefix": func(p string) Transform {
		return func(s string) string { return strings.TrimPrefix(s, p) }
	},
	"trim_suffix": func(p string) Transform {
		return func(s string) string { return strings.TrimSuffix(s, p) }
	},
}

// ParseTransform resolves a transform name. Parameterised transforms take
// their argument after a colon, e.g. "after_last:|".
func ParseTransform(spec string) (Transform, error) {
	if t, ok := simpleTransforms[spec]; ok {
		return t, nil
	}
	name, arg, ok := strings.Cut(spec, ":")
	if ok {
		if mk, found := argTransforms[name]; found {
			if arg == "" {
				return nil, fmt.Errorf("transform %q: empty argument", spec)
			}
			return mk(arg), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, spec)
}
