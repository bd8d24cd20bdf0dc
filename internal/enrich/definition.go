package enrich

import "strings"

// GenBank definition lines look like
// "Escherichia coli strain K-12 chromosome, complete genome". The text before
// the first comma names the molecule, the text after it describes how
// complete the sequence is.

type levelRule struct {
	tail     string // exact match on the text after the first comma
	contains string // substring of the whole definition
	level    string
}

// levelRules are tried in order; the first match wins.
var levelRules = []levelRule{
	{tail: "whole genome shotgun sequence", level: "contig whole genome shotgun sequence"},
	{tail: "complete sequence", level: "complete sequence"},
	{tail: "complete genome", level: "complete genome"},
	{tail: "contig", level: "contig"},
	{contains: "plasmid", level: "chromosome"},
	{contains: "chromosome", level: "chromosome"},
}

const influenzaA = "Influenza A virus"

func splitDefinition(def string) (head, tail string, ok bool) {
	head, tail, ok = strings.Cut(def, ",")
	return strings.TrimSpace(head), strings.TrimSpace(tail), ok
}

// AssemblyLevel derives the assembly level from a definition line.
func AssemblyLevel(def string) string {
	_, tail, ok := splitDefinition(def)
	if !ok {
		if strings.Contains(def, "chromosome") {
			return "chromosome"
		}
		return ""
	}
	for _, r := range levelRules {
		if r.tail != "" && r.tail == tail {
			return r.level
		}
		if r.contains != "" && strings.Contains(def, r.contains) {
			return r.level
		}
	}
	return tail
}

// GenomicSection derives the molecule name, e.g. "segment 4 hemagglutinin
// (HA) gene" for an influenza A segment.
func GenomicSection(def string) string {
	head, _, ok := splitDefinition(def)
	if !ok {
		if strings.Contains(def, "chromosome") {
			return "chromosome"
		}
		return ""
	}
	if strings.Contains(def, influenzaA) {
		if _, rest, found := strings.Cut(head, "))"); found {
			return strings.TrimSpace(rest)
		}
	}
	return head
}

// InfraspecificName derives the strain or isolate name. For influenza A it
// is the parenthesised strain designation between "virus" and "segment".
func InfraspecificName(def string) string {
	head, _, ok := splitDefinition(def)
	if !ok {
		return ""
	}
	if strings.Contains(def, influenzaA) {
		if _, rest, found := strings.Cut(head, "virus"); found {
			infra, _, _ := strings.Cut(rest, "segment")
			return strings.TrimSpace(infra)
		}
	}
	return head
}

type kingdomRule struct {
	taxon   string
	kingdom string
}

var kingdomRules = []kingdomRule{
	{"Viruses", "virus"},
	{"Fungi", "fungi"},
	{"Bacteria", "bacteria"},
}

const (
	KingdomOther   = "other"
	KingdomUnknown = "Unknown"
)

// Kingdom classifies a semicolon separated lineage.
func Kingdom(lineage string) string {
	if strings.TrimSpace(lineage) == "" {
		return KingdomUnknown
	}
	for _, r := range kingdomRules {
		if strings.Contains(lineage, r.taxon) {
			return r.kingdom
		}
	}
	return KingdomOther
}
