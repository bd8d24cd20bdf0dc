package entrez

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// GBSet is the root of a GenBank XML efetch answer.
type GBSet struct {
	XMLName xml.Name `xml:"GBSet"`
	Seqs    []GBSeq  `xml:"GBSeq"`
}

// GBSeq is the subset of a GenBank record the enricher reads.
type GBSeq struct {
	Locus            string      `xml:"GBSeq_locus"`
	Definition       string      `xml:"GBSeq_definition"`
	PrimaryAccession string      `xml:"GBSeq_primary-accession"`
	AccessionVersion string      `xml:"GBSeq_accession-version"`
	Organism         string      `xml:"GBSeq_organism"`
	Taxonomy         string      `xml:"GBSeq_taxonomy"`
	Comment          string      `xml:"GBSeq_comment"`
	Xrefs            []GBXref    `xml:"GBSeq_xrefs>GBXref"`
	Features         []GBFeature `xml:"GBSeq_feature-table>GBFeature"`
}

type GBXref struct {
	DBName string `xml:"GBXref_dbname"`
	ID     string `xml:"GBXref_id"`
}

type GBFeature struct {
	Key   string        `xml:"GBFeature_key"`
	Quals []GBQualifier `xml:"GBFeature_quals>GBQualifier"`
}

type GBQualifier struct {
	Name  string `xml:"GBQualifier_name"`
	Value string `xml:"GBQualifier_value"`
}

// Xref returns the first cross reference id for db ("Assembly", "BioProject").
func (s *GBSeq) Xref(db string) string {
	for _, x := range s.Xrefs {
		if x.DBName == db {
			return x.ID
		}
	}
	return ""
}

// TaxonID returns the NCBI taxonomy id from the first "taxon:" db_xref.
func (s *GBSeq) TaxonID() string {
	for _, f := range s.Features {
		for _, q := range f.Quals {
			if q.Name != "db_xref" {
				continue
			}
			if id, ok := strings.CutPrefix(q.Value, "taxon:"); ok {
				return id
			}
		}
	}
	return ""
}

// Annotation returns a value from the structured annotation block of the
// record comment, for example "Genes (total)". Comma grouping is removed.
func (s *GBSeq) Annotation(key string) string {
	for _, part := range strings.Split(s.Comment, ";") {
		k, v, ok := strings.Cut(part, "::")
		if !ok || strings.TrimSpace(k) != key {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	}
	return ""
}

// TaxaSet is the root of a taxonomy XML efetch answer.
type TaxaSet struct {
	XMLName xml.Name `xml:"TaxaSet"`
	Taxa    []Taxon  `xml:"Taxon"`
}

type Taxon struct {
	TaxID          string `xml:"TaxId"`
	ScientificName string `xml:"ScientificName"`
	Rank           string `xml:"Rank"`
	Lineage        string `xml:"Lineage"`
}

// ExpXML is the experiment descriptor embedded in an SRA document summary.
type ExpXML struct {
	Instrument InstrumentAttrs `xml:"Instrument"`
	Library    struct {
		Name      string `xml:"LIBRARY_NAME"`
		Strategy  string `xml:"LIBRARY_STRATEGY"`
		Source    string `xml:"LIBRARY_SOURCE"`
		Selection string `xml:"LIBRARY_SELECTION"`
	} `xml:"Library_descriptor"`
	Organism struct {
		TaxID string `xml:"taxid,attr"`
		Name  string `xml:"ScientificName,attr"`
	} `xml:"Organism"`
	Bioproject string `xml:"Bioproject"`
	Biosample  string `xml:"Biosample"`
}

// InstrumentAttrs carries the platform as attribute name and the model as
// its value, e.g. ILLUMINA="Illumina MiSeq".
type InstrumentAttrs struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

// Model returns the first instrument model listed.
func (i InstrumentAttrs) Model() string {
	for _, a := range i.Attrs {
		if a.Value != "" {
			return a.Value
		}
	}
	return ""
}

// ParseExpXML parses the fragment list NCBI returns in the expxml field.
func ParseExpXML(fragment string) (*ExpXML, error) {
	var x ExpXML
	if err := xml.Unmarshal([]byte("<ExpXml>"+fragment+"</ExpXml>"), &x); err != nil {
		return nil, fmt.Errorf("parse expxml: %w", err)
	}
	return &x, nil
}

// BioSample is the subset of a BioSample record the enricher reads.
type BioSample struct {
	Accession string `xml:"accession,attr"`
	Ids       []struct {
		DB    string `xml:"db,attr"`
		Value string `xml:",chardata"`
	} `xml:"Ids>Id"`
	Organism struct {
		TaxID string `xml:"taxonomy_id,attr"`
		Name  string `xml:"taxonomy_name,attr"`
		Label string `xml:"OrganismName"`
	} `xml:"Description>Organism"`
	Attributes []struct {
		Name       string `xml:"attribute_name,attr"`
		Harmonized string `xml:"harmonized_name,attr"`
		Value      string `xml:",chardata"`
	} `xml:"Attributes>Attribute"`
	Links []struct {
		Target string `xml:"target,attr"`
		Label  string `xml:"label,attr"`
		Value  string `xml:",chardata"`
	} `xml:"Links>Link"`
}

// Attribute returns the first non-empty attribute whose submitted or
// harmonized name matches, trying names in order.
func (b *BioSample) Attribute(names ...string) string {
	for _, name := range names {
		for _, a := range b.Attributes {
			if a.Name != name && a.Harmonized != name {
				continue
			}
			if v := strings.TrimSpace(a.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

// OrganismName prefers the taxonomy name over the free-text label.
func (b *BioSample) OrganismName() string {
	if b.Organism.Name != "" {
		return b.Organism.Name
	}
	return strings.TrimSpace(b.Organism.Label)
}

// BioProject returns the accession of the linked BioProject.
func (b *BioSample) BioProject() string {
	for _, l := range b.Links {
		if l.Target != "bioproject" {
			continue
		}
		if l.Label != "" {
			return l.Label
		}
		return strings.TrimSpace(l.Value)
	}
	return ""
}
