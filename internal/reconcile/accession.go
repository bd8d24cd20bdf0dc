package reconcile

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	PrefixGCF = "GCF" // RefSeq assembly
	PrefixGCA = "GCA" // GenBank assembly
)

var accessionRE = regexp.MustCompile(`^(GC[AF])_(\d+)(?:\.(\d+))?$`)

// Accession is a parsed assembly accession such as GCF_000001405.40.
type Accession struct {
	Prefix  string
	Digits  string
	Version int
}

// ParseAccession parses s. A missing version defaults to 1.
func ParseAccession(s string) (Accession, bool) {
	m := accessionRE.FindStringSubmatch(s)
	if m == nil {
		return Accession{}, false
	}
	a := Accession{Prefix: m[1], Digits: m[2], Version: 1}
	if m[3] != "" {
		v, err := strconv.Atoi(m[3])
		if err != nil {
			return Accession{}, false
		}
		a.Version = v
	}
	return a, true
}

func (a Accession) String() string {
	return fmt.Sprintf("%s_%s.%d", a.Prefix, a.Digits, a.Version)
}

// GenBank returns the GCA accession with the same digits, version+i.
func (a Accession) GenBank(i int) string {
	return Accession{Prefix: PrefixGCA, Digits: a.Digits, Version: a.Version + i}.String()
}
